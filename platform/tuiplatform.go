package platform

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/logging"
	"lautenbacher.net/gorfid/rdm"
	"lautenbacher.net/gorfid/util"
)

const (
	maxScanLines = 12
	holdRepeats  = 5
)

// TUIPlatform simulates an RDM6300 attached to a Raspberry Pi. Key
// presses are turned into serial frames and fed through the same
// decoder the real hardware uses.
type TUIPlatform struct {
	*AbstractPlatform
	tviewapp      *tview.Application
	intro         *tview.TextView
	indicatorView *tview.TextView
	scanView      *tview.TextView
	logView       *tview.TextView
	ossignalChan  chan os.Signal
	source        *chanSource
	simTags       []rdm.Tag
	labels        map[rdm.Tag]string
	scanLines     []string
	ledOn         atomic.Bool
	buzzerOn      atomic.Bool
	logFlushOnce  sync.Once
}

// tuiPin is an indicator output drawn in the TUI.
type tuiPin struct {
	state  *atomic.Bool
	redraw func()
}

func (p *tuiPin) set(high bool) error {
	p.state.Store(high)
	p.redraw()
	return nil
}

func (p *tuiPin) halt() error {
	p.state.Store(false)
	return nil
}

func NewTUIPlatform(conf *config.Config, ossignalchan chan os.Signal) *TUIPlatform {
	return &TUIPlatform{
		AbstractPlatform: newAbstractPlatform(conf),
		ossignalChan:     ossignalchan,
		source:           newChanSource(),
		simTags:          conf.SimulatedTags(),
		labels:           conf.Labels(),
	}
}

func (s *TUIPlatform) Start() error {
	if s.config.Indicator.Enabled {
		s.indicator = newIndicator(s.config.Indicator,
			&tuiPin{state: &s.ledOn, redraw: s.queueIndicatorDraw},
			&tuiPin{state: &s.buzzerOn, redraw: s.queueIndicatorDraw})
	}
	s.initSimulationTUI()
	return nil
}

func (s *TUIPlatform) Stop() {
	s.setInShutdown()
	s.stopIndicator()
	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
}

func (s *TUIPlatform) Source() io.ByteReader {
	return s.source
}

// Signal drives the simulated indicator and lists the event in the
// scan pane.
func (s *TUIPlatform) Signal(ev *util.ScanEvent) {
	s.AbstractPlatform.Signal(ev)

	s.shutdownMutex.RLock()
	defer s.shutdownMutex.RUnlock()
	if s.isShuttingDown {
		return
	}
	line := formatScanLine(ev)
	s.tviewapp.QueueUpdateDraw(func() {
		s.scanLines = append(s.scanLines, line)
		if len(s.scanLines) > maxScanLines {
			s.scanLines = s.scanLines[len(s.scanLines)-maxScanLines:]
		}
		s.scanView.SetText(strings.Join(s.scanLines, "\n"))
	})
}

func formatScanLine(ev *util.ScanEvent) string {
	ts := ev.Timestamp.Format("15:04:05")
	if ev.IsError() {
		return fmt.Sprintf(" %s [#ff0000]error[-]   %v", ts, ev.Err)
	}
	if ev.Known {
		return fmt.Sprintf(" %s [#00ff00]known[-]   %s  %s", ts, ev.Tag, ev.Label)
	}
	return fmt.Sprintf(" %s [#ffff00]unknown[-] %s", ts, ev.Tag)
}

// introText generates the help text for the top info pane.
func (s *TUIPlatform) introText() string {
	var buf strings.Builder
	for i, tag := range s.simTags {
		if i >= 9 {
			break
		}
		label := s.labels[tag]
		if label == "" {
			label = "unknown"
		}
		buf.WriteString(fmt.Sprintf("[blue]%d[-] %s (%s)   ", i+1, tag, label))
	}
	if len(s.simTags) == 0 {
		buf.WriteString("No Simulation.Tags configured")
	}
	buf.WriteString("\nHit [#ff0000]h[-] to hold the first tag, [#ff0000]c[-] for a bad checksum, [#ff0000]g[-] for line noise")
	buf.WriteString("\nHit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs")
	return buf.String()
}

func (s *TUIPlatform) indicatorText() string {
	led, buzzer := "[#404040]●[-]", "[#404040]♪[-]"
	if s.ledOn.Load() {
		led = "[#00ff00]●[-]"
	}
	if s.buzzerOn.Load() {
		buzzer = "[#ffff00]♪[-]"
	}
	if !s.config.Indicator.Enabled {
		return " indicator disabled"
	}
	return fmt.Sprintf(" LED %s   Buzzer %s", led, buzzer)
}

func (s *TUIPlatform) queueIndicatorDraw() {
	s.tviewapp.QueueUpdateDraw(func() {
		s.indicatorView.SetText(s.indicatorText())
	})
}

// simulateTag injects the frame of the n-th simulated tag.
func (s *TUIPlatform) simulateTag(n int, repeats int) {
	if n < 0 || n >= len(s.simTags) {
		slog.Info("No simulated tag for key", "index", n+1)
		return
	}
	tag := s.simTags[n]
	frame := rdm.Encode(tag)
	slog.Debug("Simulating tag", "tag", tag, "repeats", repeats)
	for i := 0; i < repeats; i++ {
		s.source.inject(frame[:])
	}
}

func (s *TUIPlatform) simulateBadChecksum() {
	tag := rdm.Tag{ID: [rdm.TagLength]byte{0x14, 0x00, 0x8E, 0xC7, 0x93}}
	if len(s.simTags) > 0 {
		tag = s.simTags[0]
	}
	frame := corruptChecksum(rdm.Encode(tag))
	slog.Debug("Simulating frame with bad checksum", "tag", tag)
	s.source.inject(frame[:])
}

// corruptChecksum replaces the last checksum digit by the next hex
// digit, so the frame still parses but fails verification.
func corruptChecksum(frame [rdm.FrameLength]byte) [rdm.FrameLength]byte {
	const digits = "0123456789ABCDEF"
	pos := rdm.FrameLength - 2
	i := strings.IndexByte(digits, frame[pos])
	frame[pos] = digits[(i+1)%len(digits)]
	return frame
}

func (s *TUIPlatform) initSimulationTUI() {
	s.tviewapp = tview.NewApplication()

	// --- Intro Pane ---
	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.introText())
	s.intro.SetBorder(true).SetTitle(" GORFID Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	// --- Indicator Pane ---
	s.indicatorView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.indicatorView.SetText(s.indicatorText())
	s.indicatorView.SetBorder(true).SetTitle(" Indicator ").SetTitleColor(tcell.ColorLightBlue)
	s.indicatorView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	// --- Scan Pane ---
	s.scanView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.scanView.SetBorder(true).SetTitle(" Scans ").SetTitleColor(tcell.ColorLightBlue)
	s.scanView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	// --- Log Pane ---
	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	// --- Layout ---
	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 5, 0, false).
		AddItem(s.indicatorView, 3, 0, false).
		AddItem(s.scanView, maxScanLines+2, 0, false).
		AddItem(s.logView, 0, 1, true)

	// --- Flush logs after first draw ---
	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			logWriter := tview.ANSIWriter(s.logView)
			if err := logging.SetOutput(logWriter); err != nil {
				slog.Error("Failed to redirect logs into the TUI", "error", err)
			}
			s.setReady()
		})
	})

	// --- Input Handling ---
	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.ossignalChan <- os.Interrupt
			return nil
		case tcell.KeyRune:
			key := event.Rune()
			if key >= '1' && key <= '9' {
				s.simulateTag(int(key-'1'), 1)
				return nil
			}
			switch key {
			case 'h', 'H':
				s.simulateTag(0, holdRepeats)
				return nil
			case 'c', 'C':
				s.simulateBadChecksum()
				return nil
			case 'g', 'G':
				s.source.inject([]byte{'x'})
				return nil
			case 'q', 'Q':
				s.ossignalChan <- os.Interrupt
				return nil
			case 'r', 'R':
				s.ossignalChan <- syscall.SIGHUP
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	// --- Start TUI ---
	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.ossignalChan <- os.Interrupt
		}
	}()
}
