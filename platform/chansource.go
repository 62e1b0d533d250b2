package platform

import (
	"log/slog"

	"lautenbacher.net/gorfid/rdm"
)

const chanSourceSize = 4096

// chanSource is an in-memory serial line used by the simulation. Bytes
// injected by key presses are read back through the real decoder.
type chanSource struct {
	ch chan byte
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan byte, chanSourceSize)}
}

func (s *chanSource) ReadByte() (byte, error) {
	select {
	case b := <-s.ch:
		return b, nil
	default:
		return 0, rdm.ErrWouldBlock
	}
}

// inject queues data without blocking. It reports false if the line is
// congested and the rest of data was dropped.
func (s *chanSource) inject(data []byte) bool {
	for i, b := range data {
		select {
		case s.ch <- b:
		default:
			slog.Warn("Simulated serial line full, dropping bytes", "dropped", len(data)-i)
			return false
		}
	}
	return true
}
