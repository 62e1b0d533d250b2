package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"
	c "lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/rdm"
)

type serialPort interface {
	Read(p []byte) (int, error)
	Close() error
}

type portOpener func() (serialPort, error)

// uartSource adapts a serial port with a read timeout to the
// non-blocking io.ByteReader contract of rdm.Reader: a timeout becomes
// rdm.ErrWouldBlock. A failing port is closed and reopened, paced by an
// exponential backoff, without ever blocking the caller.
type uartSource struct {
	open    portOpener
	port    serialPort
	buf     []byte
	pos     int
	n       int
	backoff backoff.BackOff
	retryAt time.Time
	now     func() time.Time
}

func newUartSource(open portOpener) *uartSource {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // never give up
	bo.Reset()
	return &uartSource{
		open:    open,
		buf:     make([]byte, 64),
		backoff: bo,
		now:     time.Now,
	}
}

// connect opens the port unless it is already open.
func (s *uartSource) connect() error {
	if s.port != nil {
		return nil
	}
	port, err := s.open()
	if err != nil {
		wait := s.backoff.NextBackOff()
		s.retryAt = s.now().Add(wait)
		return fmt.Errorf("failed to open serial port (retry in %s): %w", wait, err)
	}
	s.backoff.Reset()
	s.port = port
	s.pos, s.n = 0, 0
	slog.Info("Serial port ready")
	return nil
}

func (s *uartSource) ReadByte() (byte, error) {
	if s.pos < s.n {
		b := s.buf[s.pos]
		s.pos++
		return b, nil
	}
	if s.port == nil {
		if s.now().Before(s.retryAt) {
			return 0, rdm.ErrWouldBlock
		}
		if err := s.connect(); err != nil {
			return 0, err
		}
	}
	n, err := s.port.Read(s.buf)
	if err != nil {
		s.closePort()
		wait := s.backoff.NextBackOff()
		s.retryAt = s.now().Add(wait)
		return 0, fmt.Errorf("serial read failed (reconnect in %s): %w", wait, err)
	}
	if n == 0 {
		return 0, rdm.ErrWouldBlock
	}
	s.pos, s.n = 1, n
	return s.buf[0], nil
}

func (s *uartSource) closePort() {
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		slog.Error("Error closing serial port", "error", err)
	}
	s.port = nil
	s.pos, s.n = 0, 0
}

// serialOpener opens the UART described by conf with go.bug.st/serial.
func serialOpener(conf c.SerialConfig) portOpener {
	return func() (serialPort, error) {
		mode := &serial.Mode{
			BaudRate: conf.BaudRate,
			DataBits: conf.DataBits,
			Parity:   parseParity(conf.Parity),
			StopBits: parseStopBits(conf.StopBits),
		}
		port, err := serial.Open(conf.Device, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", conf.Device, err)
		}
		if err := port.SetReadTimeout(conf.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", conf.Device, err)
		}
		// Frames that piled up while nobody was listening are stale.
		if err := port.ResetInputBuffer(); err != nil {
			slog.Warn("Failed to reset serial input buffer", "device", conf.Device, "error", err)
		}
		return port, nil
	}
}

func parseParity(p string) serial.Parity {
	switch strings.ToLower(p) {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func parseStopBits(s string) serial.StopBits {
	switch s {
	case "1.5":
		return serial.OnePointFiveStopBits
	case "2":
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}
