// errwriter.go -- io.Writer that swallows per-call error handling so a
// long chain of writes during Builder.Freeze can check the error once at
// the end, instead of after every call.
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

package mcdb

import (
	"fmt"
	"io"
)

type errWriter struct {
	w   io.Writer
	err error
}

func newErrWriter(w io.Writer) *errWriter {
	return &errWriter{w: w}
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	n, err := e.w.Write(b)
	if err != nil {
		e.err = err
		return n, err
	}
	if n != len(b) {
		e.err = shortWrite(n, len(b))
		return n, e.err
	}

	return n, nil
}

func (e *errWriter) Error() error {
	return e.err
}

func shortWrite(saw, exp int) error {
	return fmt.Errorf("short write: exp %d, wrote %d", exp, saw)
}
