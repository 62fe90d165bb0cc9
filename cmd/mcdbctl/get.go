// get.go -- 'get' command implementation: print the value(s) stored
// under KEY, with an optional -n selection among duplicate keys,
// following mcdbctl.c's "get" subcommand and built directly on the core's
// Find/FindNext pair.
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
	"os"

	"github.com/gstrauss/mcdb-sub000"
	flag "github.com/opencoff/pflag"
)

type getCommand struct{}

func init() {
	registerCommand("get", &getCommand{})
}

func (c *getCommand) run(args []string, opt *Option) int {
	var nth int
	var all bool

	fs := flag.NewFlagSet("get", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.IntVarP(&nth, "nth", "n", 0, "print only the `N`'th duplicate value (0-based)")
	fs.BoolVarP(&all, "all", "a", false, "print every value for KEY, one per line")
	fs.Usage = func() {
		fmt.Print(`Usage: get [options] DB KEY

where 'DB' is the name of an mcdb file and 'KEY' is the key to look up.

options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		warn("get: %s", err)
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) < 2 {
		warn("get: insufficient args")
		return exitUsage
	}

	rd, err := mcdb.NewReader(rest[0])
	if err != nil {
		warn("get: %s", err)
		return exitOtherErr
	}
	defer rd.Close()

	key := []byte(rest[1])

	if all {
		vals, err := rd.FindAll(key)
		if err != nil {
			warn("get: %s", err)
			return exitOtherErr
		}
		if len(vals) == 0 {
			return exitNotFound
		}
		for _, v := range vals {
			os.Stdout.Write(v)
			os.Stdout.Write([]byte("\n"))
		}
		return exitOK
	}

	data, ok, err := rd.Find(key)
	for i := 0; ok && i < nth; i++ {
		data, ok, err = rd.FindNext(key)
	}
	if err != nil {
		warn("get: %s", err)
		return exitOtherErr
	}
	if !ok {
		return exitNotFound
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return exitOK
}
