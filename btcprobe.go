// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcprobe/connmgr"
	"github.com/btcsuite/btcprobe/internal/version"
	"github.com/btcsuite/btcprobe/limits"
	"github.com/btcsuite/btcprobe/peer"
	flags "github.com/jessevdk/go-flags"
)

// Process exit codes.
const (
	exitSuccess     = 0
	exitProbeFailed = 1
	exitConfigError = 2
)

// formatResult returns the single output line describing res.
func formatResult(res *peer.Result) string {
	if res.Outcome == peer.Success {
		v := res.PeerVersion
		return fmt.Sprintf("%s: OK %s version=%d height=%d services=%v",
			res.Addr, v.UserAgent, v.ProtocolVersion, v.LastBlock,
			v.Services)
	}
	if res.Err == nil {
		return fmt.Sprintf("%s: FAILED %v", res.Addr, res.Outcome)
	}
	return fmt.Sprintf("%s: FAILED %v: %v", res.Addr, res.Outcome, res.Err)
}

// btcprobeMain is the real main function for btcprobe.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.  It returns the process exit code.
func btcprobeMain(args []string, stdout, stderr io.Writer) int {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, err := loadConfig(args, stdout, stderr)
	if err != nil {
		var e *flags.Error
		if errors.Is(err, errInfoShown) ||
			(errors.As(err, &e) && e.Type == flags.ErrHelp) {

			return exitSuccess
		}
		return exitConfigError
	}

	if !cfg.NoFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logFile); err != nil {
			fmt.Fprintln(stderr, err)
			return exitConfigError
		}
		defer logRotator.Close()
	}

	// Show version at startup.
	prbeLog.Infof("Version %s", version.String())
	prbeLog.Debugf("Probing on %s with a %v timeout", cfg.params.Name,
		cfg.Timeout)

	// Every target holds a socket at once, so make sure the process may
	// open enough of them.
	if err := limits.SetLimits(); err != nil {
		prbeLog.Warnf("Unable to raise the open file limit: %v", err)
	}

	ctx, stop := interruptContext(context.Background())
	defer stop()

	cm, err := connmgr.New(&connmgr.Config{
		Peer:          cfg.peerConfig(),
		MaxConcurrent: cfg.MaxConcurrent,
		OnResult: func(res *peer.Result) {
			prbeLog.Debugf("%s finished after %v: %v", res.Addr,
				res.Elapsed, res.Outcome)
		},
	})
	if err != nil {
		prbeLog.Errorf("Unable to create connection manager: %v", err)
		return exitConfigError
	}

	failed := 0
	for _, res := range cm.Probe(ctx, cfg.targets) {
		fmt.Fprintln(stdout, formatResult(res))
		if res.Outcome != peer.Success {
			failed++
		}
	}

	if failed > 0 {
		return exitProbeFailed
	}
	return exitSuccess
}

func main() {
	os.Exit(btcprobeMain(os.Args[1:], os.Stdout, os.Stderr))
}
