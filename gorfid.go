package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	c "lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/logging"
	pl "lautenbacher.net/gorfid/platform"
	"lautenbacher.net/gorfid/scanner"
	"lautenbacher.net/gorfid/util"
	"lautenbacher.net/gorfid/web"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

const webShutdownTimeout = 3 * time.Second

type options struct {
	realHW bool
	cfile  string
	once   bool
}

type App struct {
	opts       options
	ossignal   chan os.Signal
	out        io.Writer
	config     *c.Config
	platform   pl.Platform
	scanner    *scanner.Scanner
	web        *web.Server
	cancel     context.CancelFunc
	shutdownWg sync.WaitGroup
	firstScan  chan util.ScanEvent

	newPlatform func(conf *c.Config, ossignal chan os.Signal, realHW bool) pl.Platform
}

func NewApp(ossignal chan os.Signal, opts options) *App {
	return &App{
		opts:        opts,
		ossignal:    ossignal,
		out:         os.Stdout,
		newPlatform: newPlatform,
	}
}

func newPlatform(conf *c.Config, ossignal chan os.Signal, realHW bool) pl.Platform {
	if realHW {
		return pl.NewRaspberryPiPlatform(conf)
	}
	return pl.NewTUIPlatform(conf, ossignal)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(exitOK)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitConfigError)
	}

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	os.Exit(NewApp(ossignal, opts).run())
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("gorfid", pflag.ContinueOnError)
	flagSet.BoolVarP(&opts.realHW, "real", "r", false, "use the reader module on the Raspberry Pi UART instead of the TUI simulation")
	flagSet.StringVarP(&opts.cfile, "config", "c", c.CONFILE, "configuration file")
	flagSet.BoolVarP(&opts.once, "once", "o", false, "exit after the first accepted tag")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gorfid [flags]\n\nReads RFID tags from an RDM6300 compatible reader module.\n\nFlags:\n%s", flagSet.FlagUsages())
	}
	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if flagSet.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	return opts, nil
}

// run starts everything from the config file and blocks until the
// program should exit. A SIGHUP or a changed config file tears
// everything down and starts over. Only a broken config at startup is
// fatal, on a reload the last good one stays in use.
func (a *App) run() int {
	for {
		conf, err := c.ReadConfig(a.opts.cfile)
		switch {
		case err == nil:
			a.config = conf
		case a.config == nil:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitConfigError
		default:
			slog.Error("Failed to reload config, keeping the previous one", "file", a.opts.cfile, "error", err)
		}

		if err := a.initialise(); err != nil {
			slog.Error("Failed to start", "error", err)
			a.shutdown()
			return exitFailure
		}

		select {
		case sig := <-a.ossignal:
			a.shutdown()
			if sig == syscall.SIGHUP {
				slog.Info("Reloading config", "file", a.opts.cfile)
				continue
			}
			slog.Info("Exiting", "signal", sig.String())
			return exitOK
		case ev := <-a.firstScan:
			a.shutdown()
			if !a.opts.realHW {
				// the TUI owned the terminal until now
				a.printScan(ev)
			}
			return exitOK
		}
	}
}

func (a *App) initialise() error {
	logConf := a.config.Logging.HW
	if !a.opts.realHW {
		logConf = a.config.Logging.TUI
	}
	if err := logging.Init(!a.opts.realHW, logConf); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	a.platform = a.newPlatform(a.config, a.ossignal, a.opts.realHW)
	if err := a.platform.Start(); err != nil {
		return fmt.Errorf("failed to start platform: %w", err)
	}
	<-a.platform.Ready()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.firstScan = make(chan util.ScanEvent, 1)

	a.scanner = scanner.New(a.config.Reader, a.config.Labels(), a.platform.Source(), a.platform)
	a.scanner.OnScan(a.handleScan)
	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		a.scanner.Run(ctx)
	}()

	if a.config.Web.Enabled {
		a.web = web.NewServer(a.config.Web.Address, a.scanner, a.opts.cfile)
		if err := a.web.Start(); err != nil {
			return fmt.Errorf("failed to start web API: %w", err)
		}
	}

	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		if err := c.Watch(ctx, a.opts.cfile, a.requestReload); err != nil {
			slog.Warn("Config file is not watched", "error", err)
		}
	}()

	slog.Info("Started", "real", a.opts.realHW, "config", a.opts.cfile, "tags", len(a.config.Tags))
	return nil
}

func (a *App) handleScan(ev util.ScanEvent) {
	if a.opts.realHW {
		a.printScan(ev)
	}
	if a.opts.once {
		select {
		case a.firstScan <- ev:
		default:
		}
	}
}

func (a *App) printScan(ev util.ScanEvent) {
	fmt.Fprintf(a.out, "Received RFID: %s\n", ev.Tag)
}

func (a *App) requestReload() {
	select {
	case a.ossignal <- syscall.SIGHUP:
	default:
		// a signal is already pending
	}
}

// shutdown stops everything initialise started, in reverse order.
func (a *App) shutdown() {
	if a.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), webShutdownTimeout)
		a.web.Stop(ctx)
		cancel()
		a.web = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.shutdownWg.Wait()

	if a.platform != nil {
		a.platform.Stop()
		a.platform = nil
	}
	// the TUI is gone, remaining records go to the terminal
	if err := logging.SetOutput(os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error flushing log: %v\n", err)
	}
	if err := logging.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing log: %v\n", err)
	}
}

// Local Variables:
// compile-command: "GOOS=linux GOARCH=arm GOARM=6 go build ."
// End:
