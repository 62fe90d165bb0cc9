// textcodec_test.go -- round-trip and format-error tests for the
// "+klen,dlen:key->data\n" boundary codec.
//
// License GPLv2

package textcodec

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	in := "+3,5:one->Hello\n+3,5:two->World\n\n"

	var got []Record
	n, err := Decode(strings.NewReader(in), func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if n != 2 {
		t.Fatalf("exp 2 records, saw %d", n)
	}

	var buf bytes.Buffer
	for _, r := range got {
		if err := Encode(&buf, r.Key, r.Data); err != nil {
			t.Fatalf("encode: %s", err)
		}
	}
	if err := EncodeEnd(&buf); err != nil {
		t.Fatalf("encodeEnd: %s", err)
	}

	if buf.String() != in {
		t.Fatalf("round-trip mismatch:\nwant %q\nsaw  %q", in, buf.String())
	}
}

func TestDecodeEmptyKeyAndData(t *testing.T) {
	in := "+0,0:->\n\n"
	var got []Record
	_, err := Decode(strings.NewReader(in), func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if len(got) != 1 || len(got[0].Key) != 0 || len(got[0].Data) != 0 {
		t.Fatalf("exp one empty record, saw %+v", got)
	}
}

func TestDecodeRejectsBadPreamble(t *testing.T) {
	cases := []string{
		"x3,5:one->Hello\n\n",  // missing leading '+'
		"+3;5:one->Hello\n\n",  // wrong separator
		"+3,5-one->Hello\n\n",  // wrong separator
		"+3,5:oneHELLO\n\n",    // missing "->"
	}
	for _, in := range cases {
		_, err := Decode(strings.NewReader(in), func(Record) error { return nil })
		if err == nil {
			t.Fatalf("expected format error for input %q", in)
		}
	}
}

func TestDecodeEmptyStreamTerminatesImmediately(t *testing.T) {
	n, err := Decode(strings.NewReader("\n"), func(Record) error { return nil })
	if err != nil || n != 0 {
		t.Fatalf("exp (0, nil), saw (%d, %v)", n, err)
	}
}
