package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "lautenbacher.net/gorfid/config"
	pl "lautenbacher.net/gorfid/platform"
	"lautenbacher.net/gorfid/rdm"
	"lautenbacher.net/gorfid/util"
)

type frameSource struct {
	mu   sync.Mutex
	data []byte
}

func (f *frameSource) ReadByte() (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return 0, rdm.ErrWouldBlock
	}
	b := f.data[0]
	f.data = f.data[1:]
	return b, nil
}

type MockPlatform struct {
	pl.Platform
	source  *frameSource
	started chan struct{}
	mu      sync.Mutex
	stops   int
	signals []*util.ScanEvent
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		source:  &frameSource{},
		started: make(chan struct{}, 10),
	}
}

func (m *MockPlatform) Start() error {
	m.started <- struct{}{}
	return nil
}

func (m *MockPlatform) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *MockPlatform) Ready() <-chan bool {
	readyChan := make(chan bool)
	close(readyChan)
	return readyChan
}

func (m *MockPlatform) Source() io.ByteReader {
	return m.source
}

func (m *MockPlatform) Signal(ev *util.ScanEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, ev)
}

func (m *MockPlatform) getStops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0o644))
	return cfile
}

const testConfig = `
Reader:
  PollDelay: 1ms
Tags:
  "14008EC793": front door
`

func newTestApp(t *testing.T, cfile string, once bool) (*App, *MockPlatform, chan os.Signal, *bytes.Buffer) {
	t.Helper()
	ossignal := make(chan os.Signal, 1)
	app := NewApp(ossignal, options{realHW: true, cfile: cfile, once: once})
	out := &bytes.Buffer{}
	app.out = out

	mockPlatform := NewMockPlatform()
	app.newPlatform = func(*c.Config, chan os.Signal, bool) pl.Platform {
		return mockPlatform
	}
	return app, mockPlatform, ossignal, out
}

func waitStarted(t *testing.T, m *MockPlatform) {
	t.Helper()
	select {
	case <-m.started:
	case <-time.After(2 * time.Second):
		t.Fatal("platform was not started")
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, options{cfile: c.CONFILE}, opts)

	opts, err = parseFlags([]string{"-r", "-o", "-c", "other.yml"})
	require.NoError(t, err)
	assert.Equal(t, options{realHW: true, once: true, cfile: "other.yml"}, opts)

	opts, err = parseFlags([]string{"--real", "--config=x.yml"})
	require.NoError(t, err)
	assert.True(t, opts.realHW)
	assert.Equal(t, "x.yml", opts.cfile)

	_, err = parseFlags([]string{"extra"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags([]string{"-h"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestApp_ConfigError(t *testing.T) {
	app, _, _, _ := newTestApp(t, filepath.Join(t.TempDir(), "missing.yml"), false)
	assert.Equal(t, exitConfigError, app.run())

	app, _, _, _ = newTestApp(t, writeConfig(t, "Reader:\n  HistorySize: 0\n"), false)
	assert.Equal(t, exitConfigError, app.run())
}

func TestApp_Once(t *testing.T) {
	app, mockPlatform, _, out := newTestApp(t, writeConfig(t, testConfig), true)
	frame := rdm.Encode(rdm.Tag{ID: [rdm.TagLength]byte{0x14, 0x00, 0x8E, 0xC7, 0x93}})
	mockPlatform.source.data = frame[:]

	done := make(chan int, 1)
	go func() { done <- app.run() }()

	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit after the first tag")
	}
	assert.Equal(t, "Received RFID: 14008EC793\n", out.String())
	assert.Equal(t, 1, mockPlatform.getStops())

	mockPlatform.mu.Lock()
	defer mockPlatform.mu.Unlock()
	require.Len(t, mockPlatform.signals, 1)
	assert.True(t, mockPlatform.signals[0].Known)
}

func TestApp_ReloadAndExit(t *testing.T) {
	app, mockPlatform, ossignal, _ := newTestApp(t, writeConfig(t, testConfig), false)

	done := make(chan int, 1)
	go func() { done <- app.run() }()

	waitStarted(t, mockPlatform)
	ossignal <- syscall.SIGHUP
	waitStarted(t, mockPlatform)
	assert.Equal(t, 1, mockPlatform.getStops())

	ossignal <- os.Interrupt
	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit on interrupt")
	}
	assert.Equal(t, 2, mockPlatform.getStops())
}

func TestApp_ReloadKeepsLastGoodConfig(t *testing.T) {
	cfile := writeConfig(t, testConfig)
	app, mockPlatform, ossignal, _ := newTestApp(t, cfile, false)

	done := make(chan int, 1)
	go func() { done <- app.run() }()

	waitStarted(t, mockPlatform)
	require.NoError(t, os.WriteFile(cfile, []byte("Reader:\n  PollDelay: 1m s\n"), 0o644))
	ossignal <- syscall.SIGHUP
	waitStarted(t, mockPlatform)

	select {
	case code := <-done:
		t.Fatalf("app exited with %d after a broken reload", code)
	case <-time.After(100 * time.Millisecond):
	}

	ossignal <- os.Interrupt
	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit on interrupt")
	}
	assert.Equal(t, time.Millisecond, app.config.Reader.PollDelay, "the previous config stays in use")
	assert.Equal(t, "front door", app.config.Tags["14008EC793"])
}
