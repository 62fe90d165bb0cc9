// stat.go -- 'stats' command implementation: a fsck-style integrity
// check, following mcdbctl.c's "-s"/"stats" option and opencoff/go-mph's
// example/fsck.go. Opening a Reader already runs the header's table
// checks (see format.go's decodeHeader), so stats here just surfaces the
// result.
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

type statCommand struct{}

func init() {
	registerCommand("stats", &statCommand{})
}

func (c *statCommand) run(args []string, opt *Option) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.Usage = func() {
		fmt.Print(`Usage: stats [options] DB

where 'DB' is the name of an mcdb file. Exits non-zero if any header
table lies outside the file or has an odd slot count.

options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		warn("stats: %s", err)
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) < 1 {
		warn("stats: insufficient args")
		return exitUsage
	}

	fn := rest[0]
	st, err := os.Stat(fn)
	if err != nil {
		warn("stats: %s", err)
		return exitOtherErr
	}

	rd, err := mcdb.NewReader(fn)
	if err != nil {
		warn("stats: %s", err)
		return exitOtherErr
	}
	defer rd.Close()

	fmt.Printf("%s: %d bytes, %d records\n", fn, st.Size(), rd.NumRecs())
	return exitOK
}
