// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcprobe/peer"
)

// Config holds the configuration options related to the connection manager.
type Config struct {
	// Peer is the handshake configuration shared by every attempt.  It
	// must not be modified while a probe is running.
	Peer *peer.Config

	// MaxConcurrent bounds the number of handshakes in flight at once.
	// Zero means unbounded.
	MaxConcurrent int

	// OnResult is invoked as each handshake finishes.  It may be called
	// from several goroutines at once.  This field is optional.
	OnResult func(*peer.Result)

	// Handshake runs one attempt.  It defaults to peer.Handshake.
	Handshake func(ctx context.Context, cfg *peer.Config, addr string) *peer.Result
}

// ConnManager fans handshakes out to many targets and gathers their results.
type ConnManager struct {
	cfg Config

	// inFlight is the number of handshakes currently running.
	inFlight int32
}

// New returns a new connection manager.
func New(cfg *Config) (*ConnManager, error) {
	if cfg.Peer == nil {
		return nil, errors.New("Peer config can't be nil")
	}
	if cfg.MaxConcurrent < 0 {
		return nil, errors.New("MaxConcurrent can't be negative")
	}
	cm := ConnManager{
		cfg: *cfg,
	}
	if cm.cfg.Handshake == nil {
		cm.cfg.Handshake = peer.Handshake
	}
	return &cm, nil
}

// InFlight returns the number of handshakes currently running.
func (cm *ConnManager) InFlight() int {
	return int(atomic.LoadInt32(&cm.inFlight))
}

// Probe runs one independent handshake per address and returns the results
// in the order of addrs.  A failing attempt never affects the others.
// Canceling ctx ends the attempts still running.
func (cm *ConnManager) Probe(ctx context.Context, addrs []string) []*peer.Result {
	results := make([]*peer.Result, len(addrs))

	var sem chan struct{}
	if cm.cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cm.cfg.MaxConcurrent)
	}

	log.Infof("Probing %d %s", len(addrs), pickNoun(len(addrs), "node",
		"nodes"))

	var wg sync.WaitGroup
	for i, addr := range addrs {
		if sem != nil {
			sem <- struct{}{}
		}

		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}

			atomic.AddInt32(&cm.inFlight, 1)
			res := cm.cfg.Handshake(ctx, cm.cfg.Peer, addr)
			atomic.AddInt32(&cm.inFlight, -1)

			log.Debugf("Probe of %s finished: %v", addr, res.Outcome)

			// Each goroutine only writes its own index.
			results[i] = res
			if cm.cfg.OnResult != nil {
				cm.cfg.OnResult(res)
			}
		}(i, addr)
	}
	wg.Wait()

	var succeeded int
	for _, res := range results {
		if res.Outcome == peer.Success {
			succeeded++
		}
	}
	log.Infof("Probed %d %s: %d succeeded, %d failed", len(addrs),
		pickNoun(len(addrs), "node", "nodes"), succeeded,
		len(addrs)-succeeded)

	return results
}
