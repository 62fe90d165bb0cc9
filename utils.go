// utils.go -- small utility functions
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
	"crypto/rand"
	"encoding/binary"
	"io"
)

// rand32 returns a cryptographically random uint32, used to make the
// Builder's temp-file name unpredictable and unlikely to collide across
// concurrent builders targeting the same directory.
func rand32() uint32 {
	var b [4]byte

	_, err := io.ReadFull(rand.Reader, b[:])
	if err != nil {
		panic("mcdb: can't read crypto/rand")
	}

	return binary.BigEndian.Uint32(b[:])
}
