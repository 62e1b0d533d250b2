package platform

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	c "lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/rdm"
	"lautenbacher.net/gorfid/util"
)

// recordingPin remembers every level it was set to.
type recordingPin struct {
	mu     sync.Mutex
	levels []bool
	halted bool
}

func (p *recordingPin) set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, high)
	return nil
}

func (p *recordingPin) halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = true
	return nil
}

func (p *recordingPin) pulses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.levels {
		if l {
			n++
		}
	}
	return n
}

func indicatorConfig() c.IndicatorConfig {
	return c.IndicatorConfig{
		Enabled:       true,
		LedPin:        17,
		BuzzerPin:     27,
		PulseDuration: 2 * time.Millisecond,
		SignalErrors:  true,
	}
}

var testTag = rdm.Tag{ID: [rdm.TagLength]byte{0x14, 0x00, 0x8E, 0xC7, 0x93}}

func TestIndicator_Pattern(t *testing.T) {
	ind := newIndicator(indicatorConfig(), nil, nil)

	n, d := ind.pattern(util.NewScanEvent(testTag, "door", true, time.Now()))
	assert.Equal(t, 1, n)
	assert.Equal(t, 2*time.Millisecond, d)

	n, _ = ind.pattern(util.NewScanEvent(testTag, "", false, time.Now()))
	assert.Equal(t, 2, n)

	n, d = ind.pattern(util.NewErrorEvent(rdm.ErrInvalidChecksum, time.Now()))
	assert.Equal(t, 3, n)
	assert.Equal(t, time.Millisecond, d)

	ind.config.SignalErrors = false
	n, _ = ind.pattern(util.NewErrorEvent(rdm.ErrInvalidChecksum, time.Now()))
	assert.Equal(t, 0, n)
}

func TestIndicator_SignalPulsesPins(t *testing.T) {
	led, buzzer := &recordingPin{}, &recordingPin{}
	ind := newIndicator(indicatorConfig(), led, buzzer)

	ind.signal(util.NewScanEvent(testTag, "", false, time.Now()))
	ind.stop()

	assert.Equal(t, 2, led.pulses())
	assert.Equal(t, []bool{true, false, true, false}, led.levels)
	assert.Equal(t, 2, buzzer.pulses())
	assert.True(t, led.halted)
	assert.True(t, buzzer.halted)
}

func TestIndicator_DropsWhileBusy(t *testing.T) {
	led := &recordingPin{}
	conf := indicatorConfig()
	conf.PulseDuration = 20 * time.Millisecond
	ind := newIndicator(conf, led, nil)

	ind.signal(util.NewScanEvent(testTag, "", true, time.Now()))
	ind.signal(util.NewScanEvent(testTag, "", true, time.Now()))
	ind.stop()

	assert.Equal(t, 1, led.pulses(), "second signal must be dropped")

	// after the pattern finished a new one is accepted
	ind.signal(util.NewScanEvent(testTag, "", true, time.Now()))
	ind.stop()
	assert.Equal(t, 2, led.pulses())
}

func TestIndicator_QuietAtNight(t *testing.T) {
	led, buzzer := &recordingPin{}, &recordingPin{}
	conf := indicatorConfig()
	conf.QuietAtNight = true
	ind := newIndicator(conf, led, buzzer)
	ind.isNight = func(lat, lon float64, now time.Time) bool { return true }

	ind.signal(util.NewScanEvent(testTag, "", true, time.Now()))
	ind.stop()

	assert.Equal(t, 1, led.pulses())
	assert.Equal(t, 0, buzzer.pulses(), "buzzer is muted at night")
}

func TestIndicator_Disabled(t *testing.T) {
	led := &recordingPin{}
	conf := indicatorConfig()
	conf.Enabled = false
	ind := newIndicator(conf, led, nil)

	ind.signal(util.NewScanEvent(testTag, "", true, time.Now()))
	ind.stop()
	assert.Equal(t, 0, led.pulses())
}

type failingPin struct{}

func (failingPin) set(bool) error { return errors.New("gpio gone") }
func (failingPin) halt() error    { return errors.New("gpio gone") }

func TestIndicator_PinErrorsDoNotStopPattern(t *testing.T) {
	led := &recordingPin{}
	ind := newIndicator(indicatorConfig(), led, failingPin{})

	ind.signal(util.NewScanEvent(testTag, "", true, time.Now()))
	ind.stop()
	assert.Equal(t, 1, led.pulses())
}
