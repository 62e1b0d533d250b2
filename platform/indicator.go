package platform

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	c "lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/util"
)

// outputPin is a single digital output, either a real GPIO pin or a
// simulated one.
type outputPin interface {
	set(high bool) error
	halt() error
}

// indicator gives visual and acoustic feedback for scans by pulsing an
// LED and a buzzer.
type indicator struct {
	config  c.IndicatorConfig
	led     outputPin
	buzzer  outputPin
	busy    atomic.Bool
	wg      sync.WaitGroup
	now     func() time.Time
	isNight func(lat, lon float64, now time.Time) bool
}

func newIndicator(conf c.IndicatorConfig, led, buzzer outputPin) *indicator {
	return &indicator{
		config:  conf,
		led:     led,
		buzzer:  buzzer,
		now:     time.Now,
		isNight: util.IsNight,
	}
}

// pattern returns the number of pulses and the pulse length for ev.
// Zero pulses means no feedback.
func (ind *indicator) pattern(ev *util.ScanEvent) (int, time.Duration) {
	switch {
	case ev.IsError():
		if !ind.config.SignalErrors {
			return 0, 0
		}
		return 3, ind.config.PulseDuration / 2
	case ev.Known:
		return 1, ind.config.PulseDuration
	default:
		return 2, ind.config.PulseDuration
	}
}

// signal starts the pulse pattern for ev in the background. While a
// pattern is running further signals are dropped.
func (ind *indicator) signal(ev *util.ScanEvent) {
	if !ind.config.Enabled {
		return
	}
	pulses, length := ind.pattern(ev)
	if pulses == 0 || length <= 0 {
		return
	}
	if !ind.busy.CompareAndSwap(false, true) {
		slog.Debug("Indicator busy, dropping signal")
		return
	}

	buzzer := ind.buzzer
	if buzzer != nil && ind.config.QuietAtNight && ind.isNight(ind.config.Latitude, ind.config.Longitude, ind.now()) {
		buzzer = nil
	}

	ind.wg.Add(1)
	go func() {
		defer ind.wg.Done()
		defer ind.busy.Store(false)
		for i := 0; i < pulses; i++ {
			ind.setAll(buzzer, true)
			time.Sleep(length)
			ind.setAll(buzzer, false)
			if i < pulses-1 {
				time.Sleep(length)
			}
		}
	}()
}

func (ind *indicator) setAll(buzzer outputPin, high bool) {
	for _, pin := range []outputPin{ind.led, buzzer} {
		if pin == nil {
			continue
		}
		if err := pin.set(high); err != nil {
			slog.Error("Failed to set indicator pin", "error", err)
		}
	}
}

// stop waits for a running pattern and switches all outputs off.
func (ind *indicator) stop() {
	ind.wg.Wait()
	for _, pin := range []outputPin{ind.led, ind.buzzer} {
		if pin == nil {
			continue
		}
		if err := pin.halt(); err != nil {
			slog.Error("Failed to halt indicator pin", "error", err)
		}
	}
}
