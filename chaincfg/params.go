// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcprobe/wire"
)

var (
	// ErrDuplicateNet describes an error where the parameters for a bitcoin
	// network could not be set due to the network already being a standard
	// network or previously-registered into this package.
	ErrDuplicateNet = errors.New("duplicate bitcoin network")

	// ErrUnknownNetwork describes an error where a network selector does
	// not name any standard or registered network.
	ErrUnknownNetwork = errors.New("unknown bitcoin network")
)

// Params defines a bitcoin network by its parameters.  These parameters are
// what a peer needs to frame messages for the network and to locate nodes on
// it.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.BitcoinNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// Aliases are additional selectors accepted by ParamsForNetwork.
	Aliases []string
}

// MainNetParams defines the network parameters for the main bitcoin network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         wire.MainNet,
	DefaultPort: "8333",
	Aliases:     []string{"main"},
}

// RegressionNetParams defines the network parameters for the regression test
// bitcoin network.  Not to be confused with the test bitcoin network (version
// 3), this network is sometimes simply called "testnet".
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         wire.TestNet,
	DefaultPort: "18444",
}

// TestNet3Params defines the network parameters for the test bitcoin network
// (version 3).  Not to be confused with the regression test network, this
// network is sometimes simply called "testnet".
var TestNet3Params = Params{
	Name:        "testnet3",
	Net:         wire.TestNet3,
	DefaultPort: "18333",
	Aliases:     []string{"test", "testnet"},
}

// SigNetParams defines the network parameters for the default public signet
// bitcoin network.
var SigNetParams = Params{
	Name:        "signet",
	Net:         wire.SigNet,
	DefaultPort: "38333",
}

var (
	registeredNets = make(map[wire.BitcoinNet]*Params)
	selectors      = make(map[string]*Params)
)

// Register registers the network parameters for a bitcoin network.  This may
// error with ErrDuplicateNet if the network is already registered (either
// due to a previous Register call, or the network being one of the default
// networks) or if one of its selectors is already taken.
//
// Network parameters should be registered into this package by a main package
// as early as possible.
func Register(params *Params) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}
	names := append([]string{params.Name}, params.Aliases...)
	for _, name := range names {
		if _, ok := selectors[strings.ToLower(name)]; ok {
			return ErrDuplicateNet
		}
	}

	registeredNets[params.Net] = params
	for _, name := range names {
		selectors[strings.ToLower(name)] = params
	}
	return nil
}

// mustRegister performs the same function as Register except it panics if there
// is an error.  This should only be called from package init functions.
func mustRegister(params *Params) {
	if err := Register(params); err != nil {
		panic("failed to register network: " + err.Error())
	}
}

// ParamsForNetwork returns the parameters of the network named by selector.
// Selectors are case insensitive and may be either the network name or one of
// its aliases.  ErrUnknownNetwork is returned for anything else.
func ParamsForNetwork(selector string) (*Params, error) {
	params, ok := selectors[strings.ToLower(strings.TrimSpace(selector))]
	if !ok {
		return nil, ErrUnknownNetwork
	}
	return params, nil
}

// IsRegistered returns whether the network magic belongs to a standard or
// registered network.
func IsRegistered(net wire.BitcoinNet) bool {
	_, ok := registeredNets[net]
	return ok
}

// Selectors returns the selectors of the default networks, each canonical name
// followed by its aliases.
func Selectors() []string {
	var names []string
	for _, params := range []*Params{&MainNetParams, &TestNet3Params,
		&SigNetParams, &RegressionNetParams} {

		names = append(names, params.Name)
		names = append(names, params.Aliases...)
	}
	return names
}

func init() {
	// Register all default networks when the package is initialized.
	mustRegister(&MainNetParams)
	mustRegister(&TestNet3Params)
	mustRegister(&SigNetParams)
	mustRegister(&RegressionNetParams)
}
