package rdm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Tag is the 5 byte id of an EM4100 transponder. The first byte is the
// version (or customer) id, the remaining four bytes form the card
// number that is usually printed on the card.
type Tag struct {
	ID [TagLength]byte
}

func (t Tag) String() string {
	return strings.ToUpper(hex.EncodeToString(t.ID[:]))
}

// Version returns the first id byte, the version or customer code.
func (t Tag) Version() byte {
	return t.ID[0]
}

// Number returns the card number: id bytes 1 to 4 read as a big-endian
// uint32, so 14 00 8E C7 93 gives 0x008EC793 = 9357203.
func (t Tag) Number() uint32 {
	return binary.BigEndian.Uint32(t.ID[1:])
}

func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTag parses the 10 digit hex notation produced by Tag.String.
func ParseTag(s string) (Tag, error) {
	var tag Tag
	s = strings.TrimSpace(s)
	if len(s) != 2*TagLength {
		return tag, fmt.Errorf("tag %q must have %d hex digits: %w", s, 2*TagLength, ErrInvalidData)
	}
	for i := range tag.ID {
		b, err := hexByte(s[2*i], s[2*i+1])
		if err != nil {
			return Tag{}, fmt.Errorf("tag %q: %w", s, err)
		}
		tag.ID[i] = b
	}
	return tag, nil
}
