package platform

import (
	"fmt"
	"io"
	"log/slog"

	"lautenbacher.net/gorfid/config"
)

// RaspberryPiPlatform reads the reader module from a UART and drives
// the indicator through GPIO.
type RaspberryPiPlatform struct {
	*AbstractPlatform
	gpio   *gpioBackend
	source *uartSource
}

func NewRaspberryPiPlatform(conf *config.Config) *RaspberryPiPlatform {
	inst := &RaspberryPiPlatform{
		AbstractPlatform: newAbstractPlatform(conf),
		gpio:             &gpioBackend{library: conf.Hardware.GPIOLibrary},
	}
	inst.source = newUartSource(serialOpener(conf.Serial))
	return inst
}

func (s *RaspberryPiPlatform) Start() error {
	slog.Info("Setup UART...", "device", s.config.Serial.Device, "baud", s.config.Serial.BaudRate)
	if err := s.source.connect(); err != nil {
		return err
	}

	if s.config.Indicator.Enabled {
		if err := s.startIndicator(); err != nil {
			s.source.closePort()
			s.gpio.close()
			return err
		}
	}

	s.setReady() // For RPi, we are ready immediately.
	return nil
}

func (s *RaspberryPiPlatform) startIndicator() error {
	if err := s.gpio.open(); err != nil {
		return err
	}
	led, err := s.gpio.pin(s.config.Indicator.LedPin)
	if err != nil {
		return fmt.Errorf("indicator LED: %w", err)
	}
	buzzer, err := s.gpio.pin(s.config.Indicator.BuzzerPin)
	if err != nil {
		return fmt.Errorf("indicator buzzer: %w", err)
	}
	s.indicator = newIndicator(s.config.Indicator, led, buzzer)
	return nil
}

func (s *RaspberryPiPlatform) Stop() {
	s.setInShutdown()

	// Let a running pulse pattern finish before the pins go away.
	s.stopIndicator()
	s.gpio.close()

	// The scanner is stopped before the platform, so nobody reads anymore.
	s.source.closePort()
}

func (s *RaspberryPiPlatform) Source() io.ByteReader {
	return s.source
}
