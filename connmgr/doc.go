// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package connmgr implements concurrent handshake probing of many Bitcoin nodes.

Connection Manager Overview

The connection manager starts one handshake per target address, each on its
own goroutine with its own connection, nonce and timeout.  Results are
gathered in the order the targets were given regardless of the order the
attempts finish in, and one failing target never affects another.

The number of attempts in flight can be bounded with Config.MaxConcurrent and
progress can be observed through Config.OnResult.  Canceling the context
passed to Probe is the only signal shared between attempts.
*/
package connmgr
