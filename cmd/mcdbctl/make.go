// make.go -- 'make' command implementation: build an mcdb from one or
// more text-format input files (or stdin), following example/make.go's
// shape in opencoff/go-mph and mcdbctl.c's "make" subcommand in the
// reference implementation.
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
	"github.com/gstrauss/mcdb-sub000/textcodec"
	flag "github.com/opencoff/pflag"
)

type makeCommand struct{}

func init() {
	registerCommand("make", &makeCommand{})
}

func (m *makeCommand) run(args []string, opt *Option) int {
	var fsyncOnFinish bool

	fs := flag.NewFlagSet("make", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.BoolVarP(&fsyncOnFinish, "fsync", "s", true, "fsync the database before installing it")
	fs.Usage = func() {
		fmt.Print(`Usage: make [options] DB [INPUT...]

where:
   DB       is the name of the output mcdb file
   INPUT    is one or more text-format input files (default: stdin)

The input format is lines of "+klen,dlen:key->data", terminated by a
blank line.

options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		warn("make: %s", err)
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) < 1 {
		warn("make: insufficient args")
		return exitUsage
	}

	fn := rest[0]
	inputs := rest[1:]

	db, err := mcdb.Open(fn)
	if err != nil {
		warn("make: can't create %s: %s", fn, err)
		return exitOtherErr
	}

	var tot uint64
	addFrom := func(name string, r *os.File) error {
		n, err := textcodec.Decode(r, func(rec textcodec.Record) error {
			return db.Add(rec.Key, rec.Data)
		})
		tot += n
		opt.Printf("+ %s: %d records\n", name, n)
		return err
	}

	if len(inputs) > 0 {
		for _, f := range inputs {
			fd, err := os.Open(f)
			if err != nil {
				db.Cancel()
				warn("make: can't open %s: %s", f, err)
				return exitOtherErr
			}
			err = addFrom(f, fd)
			fd.Close()
			if err != nil {
				db.Cancel()
				warn("make: can't add %s: %s", f, err)
				return exitOtherErr
			}
		}
	} else {
		if err := addFrom("<STDIN>", os.Stdin); err != nil {
			db.Cancel()
			warn("make: can't add from stdin: %s", err)
			return exitOtherErr
		}
	}

	if err := db.Freeze(fsyncOnFinish); err != nil {
		warn("make: can't write db %s: %s", fn, err)
		return exitOtherErr
	}

	opt.Printf("%d records\n", tot)
	return exitOK
}
