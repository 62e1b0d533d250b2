package util

import (
	"time"

	"lautenbacher.net/gorfid/rdm"
)

// ScanEvent is the outcome of one read attempt that is worth reporting:
// either an accepted tag or a read error.
type ScanEvent struct {
	Tag       rdm.Tag   `json:"tag"`
	Label     string    `json:"label,omitempty"`
	Known     bool      `json:"known"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// NewScanEvent creates a ScanEvent for an accepted tag.
func NewScanEvent(tag rdm.Tag, label string, known bool, ts time.Time) *ScanEvent {
	inst := ScanEvent{
		Tag:       tag,
		Label:     label,
		Known:     known,
		Timestamp: ts,
	}
	return &inst
}

// NewErrorEvent creates a ScanEvent for a failed read.
func NewErrorEvent(err error, ts time.Time) *ScanEvent {
	return &ScanEvent{Err: err, Timestamp: ts}
}

func (e *ScanEvent) IsError() bool {
	return e.Err != nil
}
