package platform

import (
	"io"

	"lautenbacher.net/gorfid/util"
)

// Platform abstracts the real hardware away from the TUI simulation.
type Platform interface {
	// Start initializes the platform (e.g., opens the UART and GPIO, or
	// starts the TUI).
	Start() error

	// Stop cleans up all platform resources.
	Stop()

	// Ready is closed once the platform is fully up.
	Ready() <-chan bool

	// Source returns the non-blocking byte stream of the reader module.
	// It answers rdm.ErrWouldBlock when no byte is available.
	Source() io.ByteReader

	// Signal gives feedback to the user for an accepted scan or a
	// failed read.
	Signal(ev *util.ScanEvent)
}
