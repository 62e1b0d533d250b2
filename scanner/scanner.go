// Package scanner runs the read loop on top of an rdm.Reader: it
// suppresses the repeated frames a module sends while a card stays in
// the field, keeps a bounded history and statistics, and hands every
// accepted scan to the indicator and registered handlers.
package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"
	c "lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/rdm"
	"lautenbacher.net/gorfid/util"
)

// Indicator receives feedback requests. platform.Platform satisfies it.
type Indicator interface {
	Signal(ev *util.ScanEvent)
}

// Stats is a snapshot of the scanner counters.
type Stats struct {
	Accepted       uint64    `json:"accepted"`
	Duplicates     uint64    `json:"duplicates"`
	HeadErrors     uint64    `json:"headErrors"`
	TailErrors     uint64    `json:"tailErrors"`
	ChecksumErrors uint64    `json:"checksumErrors"`
	DataErrors     uint64    `json:"dataErrors"`
	SerialErrors   uint64    `json:"serialErrors"`
	Started        time.Time `json:"started"`
	LastScan       time.Time `json:"lastScan"`
}

type Scanner struct {
	config    c.ReaderConfig
	labels    map[rdm.Tag]string
	reader    *rdm.Reader
	indicator Indicator
	latest    *util.AtomicEvent[util.ScanEvent]
	now       func() time.Time

	mu       sync.Mutex
	history  *deque.Deque[util.ScanEvent]
	lastSeen map[rdm.Tag]time.Time
	stats    Stats
	handlers []func(util.ScanEvent)
}

func New(conf c.ReaderConfig, labels map[rdm.Tag]string, src io.ByteReader, ind Indicator) *Scanner {
	history := new(deque.Deque[util.ScanEvent])
	history.Grow(conf.HistorySize)
	return &Scanner{
		config:    conf,
		labels:    labels,
		reader:    rdm.NewReader(src),
		indicator: ind,
		latest:    util.NewAtomicEvent[util.ScanEvent](),
		now:       time.Now,
		history:   history,
		lastSeen:  make(map[rdm.Tag]time.Time),
	}
}

// OnScan registers a handler for accepted scans. Handlers run on the
// scanner goroutine and must not block. Register them before Run.
func (s *Scanner) OnScan(handler func(util.ScanEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Run reads tags until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	s.mu.Lock()
	s.stats.Started = s.now()
	s.mu.Unlock()

	slog.Info("Waiting for a scan...")
	for {
		tag, err := s.reader.Next(ctx, s.config.PollDelay)
		if ctx.Err() != nil {
			slog.Info("Ending scanner go-routine")
			return
		}
		if err != nil {
			s.handleError(err)
			continue
		}
		s.handleTag(tag)
	}
}

func (s *Scanner) handleTag(tag rdm.Tag) {
	now := s.now()
	label, known := s.labels[tag]

	s.mu.Lock()
	last, seen := s.lastSeen[tag]
	s.lastSeen[tag] = now
	if seen && now.Sub(last) < s.config.Debounce {
		s.stats.Duplicates++
		s.mu.Unlock()
		slog.Debug("Suppressing repeated read", "tag", tag)
		return
	}
	s.pruneLastSeen(now)

	ev := util.NewScanEvent(tag, label, known, now)
	if s.history.Len() >= s.config.HistorySize {
		s.history.PopFront()
	}
	s.history.PushBack(*ev)
	s.stats.Accepted++
	s.stats.LastScan = now
	handlers := append([]func(util.ScanEvent){}, s.handlers...)
	s.mu.Unlock()

	slog.Info("Received RFID", "tag", tag, "label", label, "known", known, "number", tag.Number())
	s.latest.Send(*ev)
	if s.indicator != nil {
		s.indicator.Signal(ev)
	}
	for _, h := range handlers {
		h(*ev)
	}
}

// pruneLastSeen forgets tags that left the field long ago so the map
// does not grow with every card ever presented. Must hold s.mu.
func (s *Scanner) pruneLastSeen(now time.Time) {
	for tag, last := range s.lastSeen {
		if now.Sub(last) > s.config.Debounce {
			delete(s.lastSeen, tag)
		}
	}
}

func (s *Scanner) handleError(err error) {
	s.mu.Lock()
	var serr *rdm.SerialError
	switch {
	case errors.Is(err, rdm.ErrInvalidHead):
		s.stats.HeadErrors++
	case errors.Is(err, rdm.ErrInvalidTail):
		s.stats.TailErrors++
	case errors.Is(err, rdm.ErrInvalidChecksum):
		s.stats.ChecksumErrors++
	case errors.Is(err, rdm.ErrInvalidData):
		s.stats.DataErrors++
	case errors.As(err, &serr):
		s.stats.SerialErrors++
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, rdm.ErrInvalidHead):
		// routine while resynchronising on a running byte stream
		slog.Debug("Skipping byte outside of a frame")
		return
	case rdm.IsDecodeError(err):
		slog.Warn("Failed to decode frame", "error", err)
	default:
		slog.Error("Failed to read from reader module", "error", err)
	}
	if s.indicator != nil {
		s.indicator.Signal(util.NewErrorEvent(err, s.now()))
	}
}

// History returns the accepted scans, oldest first.
func (s *Scanner) History() []util.ScanEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]util.ScanEvent, s.history.Len())
	for i := range ret {
		ret[i] = s.history.At(i)
	}
	return ret
}

// Latest gives access to the most recent accepted scan.
func (s *Scanner) Latest() *util.AtomicEvent[util.ScanEvent] {
	return s.latest
}

func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
