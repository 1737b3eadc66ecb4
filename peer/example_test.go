// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcprobe/chaincfg"
	"github.com/btcsuite/btcprobe/peer"
	"github.com/btcsuite/btcprobe/wire"
)

// mockRemotePeer creates a basic remote node listening on a loopback port for
// use with Example_handshake.  It answers a single handshake and returns the
// address it listens on.
func mockRemotePeer(btcnet wire.BitcoinNet) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go func() {
		defer listener.Close()

		conn, err := listener.Accept()
		if err != nil {
			fmt.Printf("Accept: error %v\n", err)
			return
		}
		defer conn.Close()

		msg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, btcnet)
		if err != nil {
			return
		}
		theirs, ok := msg.(*wire.MsgVersion)
		if !ok {
			return
		}

		me := wire.NewNetAddressIPPort(net.IPv4(127, 0, 0, 1), 0, 0)
		ours := wire.NewMsgVersion(me, &theirs.AddrYou, theirs.Nonce+1, 100)
		ours.UserAgent = "/peer:1.0.0/"
		wire.WriteMessage(conn, ours, wire.ProtocolVersion, btcnet)
		wire.WriteMessage(conn, wire.NewMsgVerAck(), wire.ProtocolVersion,
			btcnet)

		// Wait for the verack before hanging up.
		wire.ReadMessage(conn, wire.ProtocolVersion, btcnet)
	}()

	return listener.Addr().String(), nil
}

// This example demonstrates the basic process for probing a node.  The
// handshake exchanges version and verack messages and reports how the
// attempt ended along with the version the remote node advertised.
func Example_handshake() {
	// Ordinarily this will not be needed since the probe will be connecting
	// to a remote node, however, since this example is executed and tested,
	// a mock remote node is needed to answer the handshake.
	addr, err := mockRemotePeer(wire.SigNet)
	if err != nil {
		fmt.Printf("mockRemotePeer: unexpected error %v\n", err)
		return
	}

	cfg := &peer.Config{
		UserAgentName:    "probe", // User agent name to advertise.
		UserAgentVersion: "1.0.0", // User agent version to advertise.
		ChainParams:      &chaincfg.SigNetParams,
		Timeout:          time.Second * 5,
	}
	res := peer.Handshake(context.Background(), cfg, addr)
	if res.Outcome != peer.Success {
		fmt.Printf("handshake failed: %v: %v\n", res.Outcome, res.Err)
		return
	}

	fmt.Println(res.Outcome)
	fmt.Println(res.PeerVersion.UserAgent)
	fmt.Println(res.PeerVersion.LastBlock)

	// Output:
	// success
	// /peer:1.0.0/
	// 100
}
