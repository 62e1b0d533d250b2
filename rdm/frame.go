// Package rdm decodes the serial output of the RDM6300 / RDM3600
// family of 125kHz RFID reader modules.
//
// Every tag read is sent as a frame of 14 bytes:
//
//	HEAD (0x02) | 10 bytes tag id | 2 bytes checksum | TAIL (0x03)
//
// Tag id and checksum are ASCII encoded hex digits. The checksum is
// the XOR of the five decoded id bytes.
package rdm

import (
	"errors"
	"fmt"
)

const (
	// Head starts every frame.
	Head byte = 0x02
	// Tail ends every frame.
	Tail byte = 0x03
	// BodyLength is the number of ASCII hex digits between Head and Tail.
	BodyLength = 12
	// ChecksumLength is the number of digits of the checksum at the end of the body.
	ChecksumLength = 2
	// TagLength is the number of decoded id bytes.
	TagLength = 5
	// FrameLength is the size of a complete frame on the wire.
	FrameLength = 1 + BodyLength + 1
)

var (
	ErrInvalidHead     = errors.New("rdm: invalid frame head")
	ErrInvalidTail     = errors.New("rdm: invalid frame tail")
	ErrInvalidChecksum = errors.New("rdm: invalid checksum")
	ErrInvalidData     = errors.New("rdm: invalid data")

	// ErrWouldBlock is returned by a source (and passed on by the
	// Reader) when no byte is available right now.
	ErrWouldBlock = errors.New("rdm: would block")
)

// SerialError wraps a failure of the underlying byte source.
type SerialError struct {
	Err error
}

func (e *SerialError) Error() string {
	return fmt.Sprintf("rdm: serial error: %v", e.Err)
}

func (e *SerialError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is caused by a malformed frame as
// opposed to a problem of the byte source.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrInvalidHead) ||
		errors.Is(err, ErrInvalidTail) ||
		errors.Is(err, ErrInvalidChecksum) ||
		errors.Is(err, ErrInvalidData)
}

const hexDigits = "0123456789ABCDEF"

func hexValue(ascii byte) (byte, bool) {
	switch {
	case ascii >= '0' && ascii <= '9':
		return ascii - '0', true
	case ascii >= 'A' && ascii <= 'F':
		return ascii - 'A' + 10, true
	case ascii >= 'a' && ascii <= 'f':
		return ascii - 'a' + 10, true
	}
	return 0, false
}

func hexByte(hi, lo byte) (byte, error) {
	h, ok := hexValue(hi)
	if !ok {
		return 0, ErrInvalidData
	}
	l, ok := hexValue(lo)
	if !ok {
		return 0, ErrInvalidData
	}
	return h<<4 | l, nil
}

// Decode turns the frame body (everything between HEAD and TAIL) into
// a Tag and verifies its checksum.
func Decode(body []byte) (Tag, error) {
	var tag Tag
	if len(body) != BodyLength {
		return tag, ErrInvalidData
	}

	var checksum byte
	for i := range tag.ID {
		b, err := hexByte(body[2*i], body[2*i+1])
		if err != nil {
			return Tag{}, err
		}
		tag.ID[i] = b
		checksum ^= b
	}

	expected, err := hexByte(body[BodyLength-ChecksumLength], body[BodyLength-ChecksumLength+1])
	if err != nil {
		return Tag{}, err
	}
	if checksum != expected {
		return Tag{}, ErrInvalidChecksum
	}
	return tag, nil
}

// Encode builds the complete frame a reader module would send for tag.
func Encode(tag Tag) [FrameLength]byte {
	var frame [FrameLength]byte
	frame[0] = Head
	var checksum byte
	for i, b := range tag.ID {
		frame[1+2*i] = hexDigits[b>>4]
		frame[2+2*i] = hexDigits[b&0x0F]
		checksum ^= b
	}
	frame[FrameLength-3] = hexDigits[checksum>>4]
	frame[FrameLength-2] = hexDigits[checksum&0x0F]
	frame[FrameLength-1] = Tail
	return frame
}
