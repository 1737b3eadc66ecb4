// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcprobe/wire"
	"github.com/stretchr/testify/require"
)

// frameWait bounds how long the fake peer waits for a frame from the
// negotiator before failing the test.
const frameWait = 2 * time.Second

// frame is a raw message received by the fake peer.
type frame struct {
	command string
	payload []byte
}

// fakePeer is a scripted remote end of a handshake.  Frames sent by the local
// side are drained continuously by a reader goroutine so writes on either end
// of a synchronous pipe never block each other.
type fakePeer struct {
	t      *testing.T
	conn   net.Conn
	btcnet wire.BitcoinNet
	frames chan frame
	done   chan struct{}
}

// newFakePeer starts draining conn and returns the fake peer.
func newFakePeer(t *testing.T, conn net.Conn, btcnet wire.BitcoinNet) *fakePeer {
	fp := &fakePeer{
		t:      t,
		conn:   conn,
		btcnet: btcnet,
		frames: make(chan frame, 32),
		done:   make(chan struct{}),
	}
	go fp.readLoop()
	return fp
}

func (fp *fakePeer) readLoop() {
	defer close(fp.done)
	defer close(fp.frames)

	for {
		_, command, payload, err := wire.ReadFrame(fp.conn, fp.btcnet)
		if err != nil {
			return
		}
		fp.frames <- frame{command: command, payload: payload}
	}
}

// expect waits for the next frame and requires it to carry command.
func (fp *fakePeer) expect(command string) frame {
	fp.t.Helper()

	select {
	case f, ok := <-fp.frames:
		require.True(fp.t, ok, "connection closed while waiting for %q",
			command)
		require.Equal(fp.t, command, f.command)
		return f

	case <-time.After(frameWait):
		fp.t.Fatalf("timeout waiting for %q", command)
	}
	return frame{}
}

// expectVersion waits for the local version message and decodes it.
func (fp *fakePeer) expectVersion() *wire.MsgVersion {
	fp.t.Helper()

	f := fp.expect(wire.CmdVersion)
	msg, err := wire.DecodeMessage(f.command, f.payload,
		wire.ProtocolVersion)
	require.NoError(fp.t, err)
	return msg.(*wire.MsgVersion)
}

// send writes msg to the local side.
func (fp *fakePeer) send(msg wire.Message) {
	fp.t.Helper()

	err := wire.WriteMessage(fp.conn, msg, wire.ProtocolVersion, fp.btcnet)
	require.NoError(fp.t, err)
}

// sendRaw writes b to the local side.  The error is returned rather than
// asserted since the local side may hang up part way through.
func (fp *fakePeer) sendRaw(b []byte) error {
	_, err := fp.conn.Write(b)
	return err
}

// remaining closes the fake end and returns any frames that were received
// but not consumed.
func (fp *fakePeer) remaining() []frame {
	fp.conn.Close()
	<-fp.done

	var frames []frame
	for f := range fp.frames {
		frames = append(frames, f)
	}
	return frames
}

// close shuts the fake peer down and waits for its reader to exit.
func (fp *fakePeer) close() {
	fp.remaining()
}

// remoteVersion returns the version message of a typical full node.
func remoteVersion(nonce uint64) *wire.MsgVersion {
	me := wire.NewNetAddressIPPort(net.ParseIP("192.0.2.1"), 8333,
		wire.SFNodeNetwork|wire.SFNodeWitness)
	you := wire.NewNetAddressIPPort(net.ParseIP("198.51.100.9"), 51234, 0)
	msg := wire.NewMsgVersion(me, you, nonce, 850000)
	msg.UserAgent = "/Satoshi:27.0.0/"
	msg.Services = wire.SFNodeNetwork | wire.SFNodeWitness |
		wire.SFNodeNetworkLimited
	msg.Relay = true
	return msg
}

// encodePayload returns the wire encoding of msg without a header.
func encodePayload(t *testing.T, msg wire.Message) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, msg.BtcEncode(&buf, wire.ProtocolVersion))
	return buf.Bytes()
}
