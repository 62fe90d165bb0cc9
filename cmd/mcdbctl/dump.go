// dump.go -- 'dump' command implementation: emit a mcdb's contents in the
// "+klen,dlen:key->data" text format, following example/dump.go's shape
// in opencoff/go-mph and mcdbctl.c's "dump" subcommand.
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
	"github.com/gstrauss/mcdb-sub000/textcodec"
	flag "github.com/opencoff/pflag"
)

type dumpCommand struct{}

func init() {
	registerCommand("dump", &dumpCommand{})
}

func (c *dumpCommand) run(args []string, opt *Option) int {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.Usage = func() {
		fmt.Print(`Usage: dump [options] DB

where 'DB' is the name of an mcdb file

options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		warn("dump: %s", err)
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) < 1 {
		warn("dump: insufficient args")
		return exitUsage
	}

	rd, err := mcdb.NewReader(rest[0])
	if err != nil {
		warn("dump: %s", err)
		return exitOtherErr
	}
	defer rd.Close()

	w := bufio.NewWriterSize(os.Stdout, 64*1024)
	it := rd.Iter()
	defer it.Close()

	for {
		ok, err := it.Next()
		if err != nil {
			warn("dump: %s", err)
			return exitOtherErr
		}
		if !ok {
			break
		}
		if err := textcodec.Encode(w, it.KeyPtr(), it.DataPtr()); err != nil {
			warn("dump: %s", err)
			return exitOtherErr
		}
	}
	if err := textcodec.EncodeEnd(w); err != nil {
		warn("dump: %s", err)
		return exitOtherErr
	}
	if err := w.Flush(); err != nil {
		warn("dump: %s", err)
		return exitOtherErr
	}
	return exitOK
}
