// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcprobe/chaincfg"
	"github.com/btcsuite/btcprobe/peer"
	"github.com/btcsuite/btcprobe/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// testAddr is the target address handed to Negotiate in the pipe based tests.
const testAddr = "192.0.2.1:8333"

// testConfig returns the configuration used by most tests.
func testConfig() *peer.Config {
	return &peer.Config{
		ChainParams:      &chaincfg.MainNetParams,
		Services:         0,
		UserAgentName:    "btcprobe",
		UserAgentVersion: "0.1.0",
		StartHeight:      1,
		Timeout:          2 * time.Second,
	}
}

// startNegotiate runs Negotiate over one end of an in-memory pipe and returns
// a fake peer driving the other end along with the channel the result will be
// delivered on.
func startNegotiate(ctx context.Context, t *testing.T, cfg *peer.Config) (*fakePeer, <-chan *peer.Result) {
	local, remote := net.Pipe()
	fp := newFakePeer(t, remote, cfg.ChainParams.Net)

	results := make(chan *peer.Result, 1)
	go func() {
		results <- peer.Negotiate(ctx, cfg, local, testAddr)
	}()
	return fp, results
}

// waitResult waits for the result of a negotiation.
func waitResult(t *testing.T, results <-chan *peer.Result) *peer.Result {
	t.Helper()

	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for handshake result")
	}
	return nil
}

// TestNegotiateVersionFirst tests a handshake where the remote peer sends its
// version before its verack, which is what reference nodes do.
func TestNegotiateVersionFirst(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	fp, results := startNegotiate(context.Background(), t, cfg)

	ours := fp.expectVersion()
	require.Equal(t, int32(wire.ProtocolVersion), ours.ProtocolVersion)
	require.Equal(t, "/btcwire:0.5.0/btcprobe:0.1.0/", ours.UserAgent)
	require.Equal(t, int32(1), ours.LastBlock)
	require.False(t, ours.Relay)
	require.Equal(t, wire.ServiceFlag(0), ours.Services)
	require.True(t, ours.AddrYou.IP.Equal(net.ParseIP("192.0.2.1")))
	require.Equal(t, uint16(8333), ours.AddrYou.Port)
	require.NotZero(t, ours.Nonce)

	theirs := remoteVersion(ours.Nonce + 1)
	fp.send(theirs)
	fp.expect(wire.CmdVerAck)
	fp.send(wire.NewMsgVerAck())

	res := waitResult(t, results)
	require.Equal(t, peer.Success, res.Outcome, "err: %v", res.Err)
	require.NoError(t, res.Err)
	require.Equal(t, peer.StateComplete, res.State)
	require.Equal(t, testAddr, res.Addr)
	require.NotNil(t, res.PeerVersion)
	require.Equal(t, theirs.UserAgent, res.PeerVersion.UserAgent)
	require.Equal(t, theirs.LastBlock, res.PeerVersion.LastBlock)
	require.Equal(t, theirs.Services, res.PeerVersion.Services)
	require.True(t, res.PeerVersion.Relay)
	require.Positive(t, res.Elapsed)

	require.Empty(t, fp.remaining())
}

// TestNegotiateVerAckFirst ensures the version and verack of the remote peer
// are accepted in the opposite order too.
func TestNegotiateVerAckFirst(t *testing.T) {
	defer goleak.VerifyNone(t)

	fp, results := startNegotiate(context.Background(), t, testConfig())

	ours := fp.expectVersion()
	fp.send(wire.NewMsgVerAck())
	fp.send(remoteVersion(ours.Nonce + 1))
	fp.expect(wire.CmdVerAck)

	res := waitResult(t, results)
	require.Equal(t, peer.Success, res.Outcome, "err: %v", res.Err)
	require.Equal(t, peer.StateComplete, res.State)

	fp.close()
}

// TestNegotiateIgnoresOtherMessages ensures commands that play no part in the
// handshake are skipped, pings are answered and duplicates are ignored.
func TestNegotiateIgnoresOtherMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	fp, results := startNegotiate(context.Background(), t, testConfig())

	ours := fp.expectVersion()
	fp.send(wire.NewMsgWTxIdRelay())
	fp.send(wire.NewMsgSendAddrV2())

	// A command this package has no message type for.
	feefilter, err := wire.EncodeFrame(wire.MainNet, "feefilter",
		[]byte{0xe8, 0x03, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, fp.sendRaw(feefilter))

	// Known commands with payloads that fail to decode are skipped too.
	for _, raw := range []struct {
		command string
		payload []byte
	}{
		{wire.CmdPing, nil},
		{wire.CmdPing, []byte{0x01, 0x02, 0x03}},
		{wire.CmdSendAddrV2, []byte{0x00}},
	} {
		b, err := wire.EncodeFrame(wire.MainNet, raw.command, raw.payload)
		require.NoError(t, err)
		require.NoError(t, fp.sendRaw(b))
	}

	fp.send(wire.NewMsgPing(0xabcdef))
	pong := fp.expect(wire.CmdPong)
	msg, err := wire.DecodeMessage(pong.command, pong.payload,
		wire.ProtocolVersion)
	require.NoError(t, err)
	require.Equal(t, uint64(0xabcdef), msg.(*wire.MsgPong).Nonce)

	fp.send(remoteVersion(ours.Nonce + 1))
	fp.expect(wire.CmdVerAck)

	// A command using the full 12 bytes between version and verack.
	b, err := wire.EncodeFrame(wire.MainNet, "abcdefghijkl", []byte{0x01})
	require.NoError(t, err)
	require.NoError(t, fp.sendRaw(b))

	// A second version is neither answered nor fatal.
	fp.send(remoteVersion(ours.Nonce + 2))
	fp.send(wire.NewMsgVerAck())

	res := waitResult(t, results)
	require.Equal(t, peer.Success, res.Outcome, "err: %v", res.Err)
	require.Equal(t, ours.Nonce+1, res.PeerVersion.Nonce)

	for _, f := range fp.remaining() {
		require.NotEqual(t, wire.CmdVerAck, f.command)
	}
}

// TestNegotiateStrict ensures strict mode rejects any command other than
// version and verack.
func TestNegotiateStrict(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name string
		msg  wire.Message
	}{
		{"sendaddrv2", wire.NewMsgSendAddrV2()},
		{"wtxidrelay", wire.NewMsgWTxIdRelay()},
		{"ping", wire.NewMsgPing(7)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.StrictHandshake = true
			fp, results := startNegotiate(context.Background(), t, cfg)

			ours := fp.expectVersion()
			fp.send(remoteVersion(ours.Nonce + 1))
			fp.expect(wire.CmdVerAck)
			fp.send(test.msg)

			res := waitResult(t, results)
			require.Equal(t, peer.UnexpectedMessage, res.Outcome)
			require.ErrorIs(t, res.Err, peer.ErrUnexpectedMessage)
			require.Equal(t, peer.StateFailed, res.State)

			fp.close()
		})
	}
}

// TestNegotiateSelfConnection ensures a version echoing the local nonce is
// detected as a connection back to ourselves.
func TestNegotiateSelfConnection(t *testing.T) {
	defer goleak.VerifyNone(t)

	fp, results := startNegotiate(context.Background(), t, testConfig())

	ours := fp.expectVersion()
	fp.send(remoteVersion(ours.Nonce))

	res := waitResult(t, results)
	require.Equal(t, peer.SelfConnection, res.Outcome)
	require.ErrorIs(t, res.Err, peer.ErrSelfConnection)
	require.Equal(t, peer.StateFailed, res.State)

	// No verack is sent to ourselves.
	for _, f := range fp.remaining() {
		require.NotEqual(t, wire.CmdVerAck, f.command)
	}
}

// TestNegotiateTimeout ensures a silent peer times out no earlier than the
// configured budget and not much later.
func TestNegotiateTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name        string
		sendVersion bool
	}{
		{"silent peer", false},
		{"no verack", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			const timeout = 300 * time.Millisecond
			const slack = time.Second

			cfg := testConfig()
			cfg.Timeout = timeout
			start := time.Now()
			fp, results := startNegotiate(context.Background(), t, cfg)

			ours := fp.expectVersion()
			if test.sendVersion {
				fp.send(remoteVersion(ours.Nonce + 1))
				fp.expect(wire.CmdVerAck)
			}

			res := waitResult(t, results)
			elapsed := time.Since(start)
			require.Equal(t, peer.Timeout, res.Outcome, "err: %v", res.Err)
			require.Equal(t, peer.StateFailed, res.State)
			require.GreaterOrEqual(t, elapsed, timeout)
			require.Less(t, elapsed, timeout+slack)
			require.Equal(t, test.sendVersion, res.PeerVersion != nil)

			fp.close()
		})
	}
}

// TestNegotiateFrameErrors ensures corrupt frames end the attempt with the
// matching outcome.
func TestNegotiateFrameErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name  string
		frame func(t *testing.T, nonce uint64) []byte
		close bool
		want  peer.Outcome
	}{
		{
			name: "flipped payload bit",
			frame: func(t *testing.T, nonce uint64) []byte {
				payload := encodePayload(t, remoteVersion(nonce))
				b, err := wire.EncodeFrame(wire.MainNet,
					wire.CmdVersion, payload)
				require.NoError(t, err)
				b[wire.MessageHeaderSize+30] ^= 0x01
				return b
			},
			want: peer.ChecksumMismatch,
		},
		{
			name: "truncated payload",
			frame: func(t *testing.T, nonce uint64) []byte {
				payload := encodePayload(t, remoteVersion(nonce))
				b, err := wire.EncodeFrame(wire.MainNet,
					wire.CmdVersion, payload)
				require.NoError(t, err)
				return b[:wire.MessageHeaderSize+10]
			},
			close: true,
			want:  peer.ChecksumMismatch,
		},
		{
			name: "wrong network",
			frame: func(t *testing.T, nonce uint64) []byte {
				payload := encodePayload(t, remoteVersion(nonce))
				b, err := wire.EncodeFrame(wire.TestNet3,
					wire.CmdVersion, payload)
				require.NoError(t, err)
				return b
			},
			want: peer.ProtocolMismatch,
		},
		{
			name: "unparsable version",
			frame: func(t *testing.T, nonce uint64) []byte {
				b, err := wire.EncodeFrame(wire.MainNet,
					wire.CmdVersion, []byte{0x7f, 0x11, 0x01})
				require.NoError(t, err)
				return b
			},
			want: peer.ProtocolMismatch,
		},
		{
			name: "user agent overrun",
			frame: func(t *testing.T, nonce uint64) []byte {
				payload := encodePayload(t, remoteVersion(nonce))
				payload[80] = 0xfc
				b, err := wire.EncodeFrame(wire.MainNet,
					wire.CmdVersion, payload)
				require.NoError(t, err)
				return b
			},
			want: peer.ProtocolMismatch,
		},
		{
			name: "verack with payload",
			frame: func(t *testing.T, nonce uint64) []byte {
				b, err := wire.EncodeFrame(wire.MainNet,
					wire.CmdVerAck, []byte{0x00})
				require.NoError(t, err)
				return b
			},
			want: peer.ProtocolMismatch,
		},
		{
			name: "hang up",
			frame: func(t *testing.T, nonce uint64) []byte {
				return nil
			},
			close: true,
			want:  peer.IoError,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fp, results := startNegotiate(context.Background(), t,
				testConfig())

			ours := fp.expectVersion()

			// The local side may hang up before the whole frame
			// is consumed.
			_ = fp.sendRaw(test.frame(t, ours.Nonce+1))
			if test.close {
				fp.close()
			}

			res := waitResult(t, results)
			require.Equal(t, test.want, res.Outcome, "err: %v", res.Err)
			require.Error(t, res.Err)
			require.Equal(t, peer.StateFailed, res.State)

			fp.close()
		})
	}
}

// TestNegotiateCanceled ensures canceling the parent context interrupts a
// blocked handshake.
func TestNegotiateCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.Timeout = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fp, results := startNegotiate(ctx, t, cfg)

	fp.expectVersion()
	cancel()

	res := waitResult(t, results)
	require.Equal(t, peer.IoError, res.Outcome)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Less(t, res.Elapsed, cfg.Timeout)

	fp.close()
}

// TestHandshakeTCP runs a full handshake over a loopback TCP connection.
func TestHandshakeTCP(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	results := make(chan *peer.Result, 1)
	go func() {
		results <- peer.Handshake(context.Background(), cfg,
			ln.Addr().String())
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	fp := newFakePeer(t, conn, wire.MainNet)

	ours := fp.expectVersion()
	require.True(t, ours.AddrYou.IP.Equal(net.IPv4(127, 0, 0, 1)))
	fp.send(remoteVersion(ours.Nonce + 1))
	fp.expect(wire.CmdVerAck)
	fp.send(wire.NewMsgVerAck())

	res := waitResult(t, results)
	require.Equal(t, peer.Success, res.Outcome, "err: %v", res.Err)
	require.Equal(t, ln.Addr().String(), res.Addr)

	fp.close()
}

// TestHandshakeConnectFailed ensures a refused connection is reported as a
// connect failure.
func TestHandshakeConnectFailed(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	res := peer.Handshake(context.Background(), testConfig(), addr)
	require.Equal(t, peer.ConnectFailed, res.Outcome, "err: %v", res.Err)
	require.Error(t, res.Err)
	require.Equal(t, peer.StateFailed, res.State)
	require.Nil(t, res.PeerVersion)
}

// TestHandshakeDial ensures the dialer is bounded by the handshake deadline
// and that dial timeouts, errors and cancellation are classified.
func TestHandshakeDial(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.Timeout = 200 * time.Millisecond

	// A dial still running at the deadline times out.
	var hasDeadline bool
	var budget time.Duration
	cfg.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		var deadline time.Time
		deadline, hasDeadline = ctx.Deadline()
		budget = time.Until(deadline)
		<-ctx.Done()
		return nil, &net.OpError{Op: "dial", Net: network,
			Err: ctx.Err()}
	}
	res := peer.Handshake(context.Background(), cfg, "203.0.113.1:8333")
	require.Equal(t, peer.Timeout, res.Outcome, "err: %v", res.Err)
	require.True(t, hasDeadline)
	require.Positive(t, budget)
	require.LessOrEqual(t, budget, cfg.Timeout)

	cfg.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("no route to host")
	}
	res = peer.Handshake(context.Background(), cfg, "203.0.113.1:8333")
	require.Equal(t, peer.ConnectFailed, res.Outcome, "err: %v", res.Err)

	// Canceling the parent during the dial is reported like a canceled
	// handshake.
	cfg.Timeout = 10 * time.Second
	cfg.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		<-ctx.Done()
		return nil, &net.OpError{Op: "dial", Net: network,
			Err: errors.New("operation was canceled")}
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res = peer.Handshake(ctx, cfg, "203.0.113.1:8333")
	require.Equal(t, peer.IoError, res.Outcome, "err: %v", res.Err)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Less(t, res.Elapsed, cfg.Timeout)

	// An already canceled context never dials.
	cfg.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		t.Fatalf("dialed with canceled context")
		return nil, nil
	}
	res = peer.Handshake(ctx, cfg, "203.0.113.1:8333")
	require.Equal(t, peer.IoError, res.Outcome, "err: %v", res.Err)
	require.ErrorIs(t, res.Err, context.Canceled)

	// Nor does an expired one.
	expired, cancelExpired := context.WithTimeout(context.Background(), 0)
	defer cancelExpired()
	res = peer.Handshake(expired, cfg, "203.0.113.1:8333")
	require.Equal(t, peer.Timeout, res.Outcome, "err: %v", res.Err)
}

// TestOutcomeStringer tests the stringized output for outcomes and states.
func TestOutcomeStringer(t *testing.T) {
	outcomes := []struct {
		in   peer.Outcome
		want string
	}{
		{peer.Success, "success"},
		{peer.ConnectFailed, "connect failed"},
		{peer.Timeout, "timeout"},
		{peer.ChecksumMismatch, "checksum mismatch"},
		{peer.ProtocolMismatch, "protocol mismatch"},
		{peer.UnexpectedMessage, "unexpected message"},
		{peer.SelfConnection, "self connection"},
		{peer.IoError, "io error"},
		{0xff, "Unknown Outcome (255)"},
	}
	for _, test := range outcomes {
		require.Equal(t, test.want, test.in.String())
	}

	states := []struct {
		in   peer.State
		want string
	}{
		{peer.StateInit, "init"},
		{peer.StateVersionSent, "version sent"},
		{peer.StateAwaitingPeerResponses, "awaiting peer responses"},
		{peer.StateComplete, "complete"},
		{peer.StateFailed, "failed"},
		{0xff, "Unknown State (255)"},
	}
	for _, test := range states {
		require.Equal(t, test.want, test.in.String())
	}
}
