package platform

import (
	"fmt"
	"log/slog"

	"github.com/stianeikeland/go-rpio/v4"
	c "lautenbacher.net/gorfid/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type rpioPin struct {
	pin rpio.Pin
}

func (p *rpioPin) set(high bool) error {
	if high {
		p.pin.High()
	} else {
		p.pin.Low()
	}
	return nil
}

func (p *rpioPin) halt() error {
	p.pin.Low()
	return nil
}

type periphPin struct {
	pin gpio.PinIO
}

func (p *periphPin) set(high bool) error {
	level := gpio.Low
	if high {
		level = gpio.High
	}
	return p.pin.Out(level)
}

func (p *periphPin) halt() error {
	if err := p.pin.Out(gpio.Low); err != nil {
		return err
	}
	return p.pin.Halt()
}

// gpioBackend opens and closes one of the two supported GPIO libraries
// and hands out output pins.
type gpioBackend struct {
	library string
	opened  bool
}

func (b *gpioBackend) open() error {
	slog.Info("Initialise GPIO...", "library", b.library)
	switch b.library {
	case "periph.io":
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("failed to init periph: %w", err)
		}
	default:
		if err := rpio.Open(); err != nil {
			return fmt.Errorf("failed to open rpio: %w", err)
		}
	}
	b.opened = true
	return nil
}

// pin returns the output pin with BCM number n, or nil for c.NoPin.
func (b *gpioBackend) pin(n int) (outputPin, error) {
	if n == c.NoPin {
		return nil, nil
	}
	switch b.library {
	case "periph.io":
		pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
		if pin == nil {
			return nil, fmt.Errorf("failed to find pin %d", n)
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("failed to set pin %d to output: %w", n, err)
		}
		return &periphPin{pin: pin}, nil
	default:
		pin := rpio.Pin(n)
		pin.Output()
		pin.Low()
		return &rpioPin{pin: pin}, nil
	}
}

func (b *gpioBackend) close() {
	if !b.opened {
		return
	}
	b.opened = false
	if b.library != "periph.io" {
		if err := rpio.Close(); err != nil {
			slog.Error("Error closing rpio", "error", err)
		}
	}
}
