// main.go -- mcdbctl: a thin CLI shell over the mcdb core (make/dump/
// stats/get/uniq), a consumer of the core's public API rather than a
// reimplementation of it.
//
// Follows example/main.go and example/cmds.go in opencoff/go-mph
// (flag.NewFlagSet + SetInterspersed(false) + Usage closure, and the
// registerCommand/runCommand command-registry pattern), and mcdbctl.c's
// subcommand set and exit-code convention in the reference implementation
// (0 success, 100 not-found, 101 usage error, 111 other).
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

	flag "github.com/opencoff/pflag"
)

// Exit codes, matching mcdbctl.c's convention.
const (
	exitOK       = 0
	exitNotFound = 100
	exitUsage    = 101
	exitOtherErr = 111
)

type Option struct {
	verbose bool
}

func (o *Option) Printf(s string, v ...interface{}) {
	if o.verbose {
		fmt.Printf(s, v...)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var opt Option

	usage := fmt.Sprintf(
		`%s - build and query mcdb constant databases

Usage: %s [global-options] CMD CMD-ARGS...

CMD is an operation to be performed and CMD-ARGS are operation specific
arguments. The list of supported operations are:

  make [options] DB [INPUT...]   -- build a new mcdb from text input
  dump [options] DB              -- dump a mcdb in text format
  stats [options] DB             -- print header/integrity statistics
  get [options] DB KEY           -- print the value(s) for KEY
  uniq [options] DB              -- list distinct keys only

Options:
`, os.Args[0], os.Args[0])

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(os.Stdout)
	fs.BoolVarP(&opt.verbose, "verbose", "V", false, "Show verbose output")
	fs.Usage = func() {
		fmt.Print(usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		warn("%s", err)
		return exitUsage
	}

	args := fs.Args()
	if len(args) < 1 {
		fmt.Print(usage)
		fs.PrintDefaults()
		return exitUsage
	}

	return runCommand(args, &opt)
}

func warn(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); n == 0 || s[n-1] != '\n' {
		s += "\n"
	}
	os.Stderr.WriteString(s)
	os.Stderr.Sync()
}
