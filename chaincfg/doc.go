// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the parameters a peer needs to reach each bitcoin
// network.
//
// In addition to the main bitcoin network, which is intended for the transfer
// of monetary value, there also exist two currently active standard networks:
// regression test and testnet (version 3).  The public default signet is
// available as well.  These networks are incompatible with each other (each
// sharing a different network magic) and software should handle errors where
// input intended for one network is used on an application instance running
// on a different network.
//
// A network is chosen by a selector string:
//
//	params, err := chaincfg.ParamsForNetwork("signet")
//	if err != nil {
//		// Unknown network.
//	}
//	addr := net.JoinHostPort(host, params.DefaultPort)
//
// Non-standard networks may be added with Register.
package chaincfg
