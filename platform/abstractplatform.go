package platform

import (
	"sync"

	c "lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/util"
)

// AbstractPlatform holds what the real and the simulated platform have
// in common.
type AbstractPlatform struct {
	config         *c.Config
	indicator      *indicator
	readyChan      chan bool
	readyOnce      sync.Once
	shutdownMutex  sync.RWMutex
	isShuttingDown bool
}

func newAbstractPlatform(conf *c.Config) *AbstractPlatform {
	return &AbstractPlatform{
		config:    conf,
		readyChan: make(chan bool),
	}
}

func (s *AbstractPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *AbstractPlatform) setReady() {
	s.readyOnce.Do(func() { close(s.readyChan) })
}

func (s *AbstractPlatform) setInShutdown() {
	s.shutdownMutex.Lock()
	s.isShuttingDown = true
	s.shutdownMutex.Unlock()
}

func (s *AbstractPlatform) Signal(ev *util.ScanEvent) {
	s.shutdownMutex.RLock()
	defer s.shutdownMutex.RUnlock()
	if s.isShuttingDown || s.indicator == nil {
		return
	}
	s.indicator.signal(ev)
}

func (s *AbstractPlatform) stopIndicator() {
	if s.indicator != nil {
		s.indicator.stop()
	}
}
