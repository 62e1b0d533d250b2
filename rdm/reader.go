package rdm

import (
	"context"
	"errors"
	"io"
	"time"
)

type state int

const (
	readHead state = iota
	readBody
	readTail
)

// Reader is a resumable frame parser on top of a non-blocking byte
// source. The source signals "no data yet" by returning ErrWouldBlock.
// A Reader must not be used from more than one goroutine at a time.
type Reader struct {
	src    io.ByteReader
	state  state
	buffer [BodyLength]byte
	offset int
}

func NewReader(src io.ByteReader) *Reader {
	return &Reader{src: src}
}

// Reset drops a partially read frame.
func (r *Reader) Reset() {
	r.offset = 0
	r.state = readHead
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.src.ReadByte()
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return 0, ErrWouldBlock
		}
		return 0, &SerialError{Err: err}
	}
	return b, nil
}

// Read advances the frame state machine as far as the source allows.
// It returns ErrWouldBlock when more data is needed, keeping all
// progress for the next call. A wrong start byte yields ErrInvalidHead
// and the next call starts over with the following byte.
func (r *Reader) Read() (Tag, error) {
	for {
		switch r.state {
		case readHead:
			b, err := r.readByte()
			if err != nil {
				return Tag{}, err
			}
			if b != Head {
				return Tag{}, ErrInvalidHead
			}
			r.state = readBody
		case readBody:
			for r.offset < BodyLength {
				b, err := r.readByte()
				if err != nil {
					return Tag{}, err
				}
				r.buffer[r.offset] = b
				r.offset++
			}
			r.state = readTail
		case readTail:
			b, err := r.readByte()
			if err != nil {
				return Tag{}, err
			}
			r.Reset()
			if b != Tail {
				return Tag{}, ErrInvalidTail
			}
			return Decode(r.buffer[:])
		}
	}
}

// Next blocks until a complete frame has been read, an error other than
// ErrWouldBlock occurs or ctx is done. Between two attempts on an
// exhausted source it sleeps for pollDelay.
func (r *Reader) Next(ctx context.Context, pollDelay time.Duration) (Tag, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			return Tag{}, err
		}
		tag, err := r.Read()
		if !errors.Is(err, ErrWouldBlock) {
			return tag, err
		}
		if pollDelay <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(pollDelay)
		} else {
			timer.Reset(pollDelay)
		}
		select {
		case <-ctx.Done():
			return Tag{}, ctx.Err()
		case <-timer.C:
		}
	}
}
