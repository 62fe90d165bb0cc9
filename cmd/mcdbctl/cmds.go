// cmds.go -- commands abstraction, following example/cmds.go in
// opencoff/go-mph.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package main

import (
	"fmt"
	"sync"
)

type command interface {
	run(args []string, opt *Option) int
}

var cmds = struct {
	sync.Mutex
	m map[string]command
}{
	m: make(map[string]command),
}

func registerCommand(nm string, cmd command) {
	cmds.Lock()
	if _, ok := cmds.m[nm]; ok {
		panic(fmt.Sprintf("%s already registered", nm))
	}
	cmds.m[nm] = cmd
	cmds.Unlock()
}

func runCommand(args []string, o *Option) int {
	nm := args[0]

	cmds.Lock()
	cmd, ok := cmds.m[nm]
	cmds.Unlock()
	if !ok {
		warn("unknown command %s", nm)
		return exitUsage
	}

	return cmd.run(args, o)
}
