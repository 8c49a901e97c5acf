package reload

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"chrreload/titles"

	textunicode "golang.org/x/text/encoding/unicode"
)

// MaxIDLength bounds identifiers in characters.
const MaxIDLength = 64

// NormalizeID trims the identifier and prepends prefix to bare numeric ids,
// so "2010" becomes "c2010" while "c2010" is kept as is.
func NormalizeID(raw, prefix string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("character id is empty: %w", ErrInvalidID)
	}
	for _, r := range id {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return "", fmt.Errorf("character id %q contains control characters: %w", id, ErrInvalidID)
		}
	}

	if prefix != "" && !strings.HasPrefix(id, prefix) && id[0] >= '0' && id[0] <= '9' {
		id = prefix + id
	}

	if n := utf8.RuneCountInString(id); n > MaxIDLength {
		return "", fmt.Errorf("character id is %d characters, at most %d allowed: %w", n, MaxIDLength, ErrInvalidID)
	}
	return id, nil
}

// EncodeID returns the null-terminated identifier in the game's text encoding.
func EncodeID(id, encoding string) ([]byte, error) {
	switch encoding {
	case titles.EncodingUTF16LE:
		enc := textunicode.UTF16(textunicode.LittleEndian, textunicode.IgnoreBOM).NewEncoder()
		b, err := enc.Bytes([]byte(id))
		if err != nil {
			return nil, fmt.Errorf("encode %q: %v: %w", id, err, ErrInvalidID)
		}
		return append(b, 0, 0), nil

	case titles.EncodingASCII:
		b := make([]byte, 0, len(id)+1)
		for _, r := range id {
			if r > unicode.MaxASCII {
				return nil, fmt.Errorf("%q is not ascii: %w", id, ErrInvalidID)
			}
			b = append(b, byte(r))
		}
		return append(b, 0), nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", encoding)
}
