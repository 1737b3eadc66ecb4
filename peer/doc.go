// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package peer drives a single outbound connection through the bitcoin
version/verack handshake and reports how it ended.

A handshake moves through the following states:

	StateInit -> StateVersionSent -> StateAwaitingPeerResponses -> StateComplete
	                                                            \-> StateFailed

The local version message is sent as soon as the connection is up.  After that
the remote version and verack are tracked independently, so peers may send
them in either order.  A verack is sent in reply to the remote version right
away.  Commands that play no part in the handshake are skipped, except for ping
which is answered with a pong.  With Config.StrictHandshake set, any such
command fails the attempt instead.

Every attempt is bounded by Config.Timeout, which is applied both to the
context and as a deadline on the connection.  Each attempt generates its own
nonce to detect connections back to itself, so attempts share no state and may
run concurrently.

Failures are reported rather than returned: Handshake and Negotiate always
produce a Result whose Outcome classifies the failure and whose Err carries the
underlying error.

	res := peer.Handshake(ctx, &peer.Config{
		ChainParams: &chaincfg.MainNetParams,
		Timeout:     5 * time.Second,
	}, "203.0.113.7:8333")
	if res.Outcome != peer.Success {
		fmt.Printf("%s: %v: %v\n", res.Addr, res.Outcome, res.Err)
	}
*/
package peer
