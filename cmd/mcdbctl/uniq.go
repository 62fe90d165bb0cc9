// uniq.go -- 'uniq' command implementation: list distinct keys only, no
// duplicate payloads, following mcdbctl.c's "uniq" subcommand, implemented
// as a thin consumer of Iter.
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
	"bufio"
	"fmt"
	"os"

	"github.com/gstrauss/mcdb-sub000"
	flag "github.com/opencoff/pflag"
)

type uniqCommand struct{}

func init() {
	registerCommand("uniq", &uniqCommand{})
}

func (c *uniqCommand) run(args []string, opt *Option) int {
	fs := flag.NewFlagSet("uniq", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.Usage = func() {
		fmt.Print(`Usage: uniq [options] DB

where 'DB' is the name of an mcdb file. Prints each distinct key once,
in the order it first appears.

options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		warn("uniq: %s", err)
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) < 1 {
		warn("uniq: insufficient args")
		return exitUsage
	}

	rd, err := mcdb.NewReader(rest[0])
	if err != nil {
		warn("uniq: %s", err)
		return exitOtherErr
	}
	defer rd.Close()

	w := bufio.NewWriterSize(os.Stdout, 64*1024)
	seen := make(map[string]struct{})
	it := rd.Iter()
	defer it.Close()

	for {
		ok, err := it.Next()
		if err != nil {
			warn("uniq: %s", err)
			return exitOtherErr
		}
		if !ok {
			break
		}
		k := string(it.KeyPtr())
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		fmt.Fprintln(w, k)
	}
	if err := w.Flush(); err != nil {
		warn("uniq: %s", err)
		return exitOtherErr
	}
	return exitOK
}
