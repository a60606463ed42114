// go-pn53x
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-pn53x.
//
// go-pn53x is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-pn53x is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-pn53x; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Command nfc-list prints the targets in the field of every reader it can
// find, or of the one named with -device. With -poll it watches the first
// reader and reports targets as they enter and leave the field. -log keeps
// a JSON record of the chip traffic for bug reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	_ "github.com/ZaparooProject/go-pn53x/detection/i2c"
	_ "github.com/ZaparooProject/go-pn53x/detection/pcsc"
	_ "github.com/ZaparooProject/go-pn53x/detection/spi"
	_ "github.com/ZaparooProject/go-pn53x/detection/uart"
	_ "github.com/ZaparooProject/go-pn53x/detection/usb"
	"github.com/ZaparooProject/go-pn53x/polling"
	_ "github.com/ZaparooProject/go-pn53x/transport/i2c"
	_ "github.com/ZaparooProject/go-pn53x/transport/pcsc"
	_ "github.com/ZaparooProject/go-pn53x/transport/spi"
	_ "github.com/ZaparooProject/go-pn53x/transport/uart"
	_ "github.com/ZaparooProject/go-pn53x/transport/usb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type config struct {
	device     string
	maxTargets int
	timeout    time.Duration
	all        bool
	poll       bool
	verbose    bool
	debug      bool
	sessionLog bool
}

func parseFlags(args []string) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("nfc-list", flag.ContinueOnError)
	fs.StringVar(&cfg.device, "device", "", "Connection string, e.g. pn532_uart:port=/dev/ttyUSB0 (scan if empty)")
	fs.IntVar(&cfg.maxTargets, "max", 16, "Maximum targets listed per modulation")
	fs.DurationVar(&cfg.timeout, "scan-timeout", 5*time.Second, "Time allowed for device detection")
	fs.BoolVar(&cfg.all, "all", false, "List every detected reader instead of the first")
	fs.BoolVar(&cfg.poll, "poll", false, "Watch the reader for targets until interrupted")
	fs.BoolVar(&cfg.verbose, "v", false, "Print full target descriptions")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug output")
	fs.BoolVar(&cfg.sessionLog, "log", false, "Write a JSON session log with all chip traffic to the current directory")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.maxTargets < 1 {
		return nil, fmt.Errorf("-max must be positive, got %d", cfg.maxTargets)
	}
	return cfg, nil
}

// listPlan returns the modulations nfc-list polls on chip: every initiator
// modulation except DEP at its lowest rate, and FeliCa at each rate.
func listPlan(dev *pn53x.Device) []pn53x.Modulation {
	var plan []pn53x.Modulation
	for _, mt := range dev.SupportedModulations(pn53x.ModeInitiator) {
		if mt == pn53x.DEP {
			continue
		}
		rates, err := dev.SupportedBaudRates(pn53x.ModeInitiator, mt)
		if err != nil || len(rates) == 0 {
			continue
		}
		if mt != pn53x.FeliCa {
			rates = rates[:1]
		}
		for _, r := range rates {
			plan = append(plan, pn53x.Modulation{Type: mt, BaudRate: r})
		}
	}
	return plan
}

// listDevice polls each modulation of plan and prints what answered. A
// failing modulation is logged and skipped.
func listDevice(ctx context.Context, dev *pn53x.Device, plan []pn53x.Modulation, cfg *config, out io.Writer) (int, error) {
	if err := dev.InitiatorInit(ctx); err != nil {
		return 0, fmt.Errorf("initiator init: %w", err)
	}
	total := 0
	for _, m := range plan {
		targets, err := dev.ListPassiveTargets(ctx, m, cfg.maxTargets)
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		if err != nil {
			log.Warn().Err(err).Stringer("modulation", m).Msg("listing failed")
			continue
		}
		if len(targets) == 0 {
			continue
		}
		plural := ""
		if len(targets) > 1 {
			plural = "s"
		}
		_, _ = fmt.Fprintf(out, "%d %s passive target%s found:\n", len(targets), m.Type, plural)
		for i := range targets {
			printTarget(out, &targets[i], cfg.verbose)
		}
		_, _ = fmt.Fprintln(out)
		total += len(targets)
	}
	return total, nil
}

func printTarget(out io.Writer, t *pn53x.Target, verbose bool) {
	if verbose {
		_, _ = fmt.Fprint(out, t.String())
		return
	}
	switch info := t.Info.(type) {
	case *pn53x.ISO14443AInfo:
		_, _ = fmt.Fprintf(out, "  UID (NFCID1): % X\n", info.UID)
	default:
		_, _ = fmt.Fprint(out, t.String())
	}
}

// pollDevice reports targets entering and leaving the field until ctx is
// done. It returns the device in use when it stopped, which differs from
// dev when the reader had to be reopened.
func pollDevice(
	ctx context.Context, dev *pn53x.Device, reopen polling.ReopenFunc, pcfg *polling.Config, cfg *config, out io.Writer,
) (*pn53x.Device, error) {
	session := polling.NewSession(dev, pcfg)
	if reopen != nil {
		sr := pcfg.SleepRecovery
		session.SetRecoverer(polling.NewDefaultRecoverer(reopen, sr.RecoveryBackoff, sr.MaxRecoveryAttempts))
	}
	session.SetOnTargetDetected(func(t *pn53x.Target) error {
		_, _ = fmt.Fprintf(out, "%s target detected:\n", t.Modulation.Type)
		printTarget(out, t, cfg.verbose)
		return nil
	})
	session.SetOnTargetRemoved(func(*pn53x.Target) {
		_, _ = fmt.Fprintln(out, "Target removed.")
	})

	err := session.Start(ctx)
	return session.GetDevice(), err
}

func connStrings(ctx context.Context, cfg *config) ([]string, error) {
	if cfg.device != "" {
		return []string{cfg.device}, nil
	}
	opts := detection.DefaultOptions()
	opts.Timeout = cfg.timeout
	found, err := detection.ScanWith(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("no reader found: %w", err)
	}
	if !cfg.all {
		found = found[:1]
	}
	return found, nil
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	devices, err := connStrings(ctx, cfg)
	if err != nil {
		return err
	}
	opened := 0
	for _, cs := range devices {
		dev, err := pn53x.Open(ctx, cs)
		if err != nil {
			log.Error().Err(err).Str("device", cs).Msg("unable to open")
			continue
		}
		opened++
		fw, _ := dev.FirmwareVersion(ctx)
		_, _ = fmt.Fprintf(out, "NFC device: %s opened (%s", cs, dev.Chip().Type)
		if fw != nil {
			_, _ = fmt.Fprintf(out, " v%s", fw.Version)
		}
		_, _ = fmt.Fprintln(out, ")")

		if cfg.poll {
			_, _ = fmt.Fprintln(out, "Waiting for targets, press Ctrl+C to stop.")
			last, err := pollDevice(ctx, dev, polling.ReopenConnString(cs), polling.DefaultConfig(), cfg, out)
			if last != nil {
				_ = last.Close()
			}
			return err
		}

		n, err := listDevice(ctx, dev, listPlan(dev), cfg, out)
		if cerr := dev.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("close")
		}
		if err != nil {
			return err
		}
		if n == 0 {
			_, _ = fmt.Fprintln(out, "No target found.")
		}
	}
	if opened == 0 {
		return errors.New("no reader could be opened")
	}
	return nil
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := zerolog.InfoLevel
	if cfg.debug {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).Level(level)
	if cfg.debug {
		pn53x.SetLogger(log.Logger)
		pn53x.SetDebugEnabled(true)
	}
	if cfg.sessionLog {
		path, lerr := pn53x.InitSessionLog()
		if lerr != nil {
			log.Error().Err(lerr).Msg("nfc-list")
			return 1
		}
		defer func() { _ = pn53x.CloseSessionLog() }()
		log.Info().Str("path", path).Msg("writing session log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		log.Error().Err(err).Msg("nfc-list")
		return 1
	}
	return 0
}
