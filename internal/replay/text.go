package replay

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

type Encoding int

const (
	// CP1252 is the legacy Windows code page older clones write.
	CP1252 Encoding = iota
	UTF8
)

func (e Encoding) String() string {
	if e == UTF8 {
		return "utf-8"
	}
	return "cp1252"
}

// DecodeText converts raw bytes from a replay into a Go string.
func DecodeText(b []byte, enc Encoding) (string, error) {
	if enc == UTF8 {
		if !utf8.Valid(b) {
			return "", Invalid("invalid utf-8 text")
		}
		return string(b), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return "", Invalid("invalid cp1252 text: %v", err)
	}
	return string(out), nil
}
