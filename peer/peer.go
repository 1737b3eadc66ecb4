// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/btcsuite/btcprobe/chaincfg"
	"github.com/btcsuite/btcprobe/wire"
	"github.com/btcsuite/go-socks/socks"
	"github.com/davecgh/go-spew/spew"
)

const (
	// MaxProtocolVersion is the max protocol version the peer supports.
	MaxProtocolVersion = wire.ProtocolVersion

	// DefaultTimeout is the handshake budget used when Config.Timeout is
	// not set.
	DefaultTimeout = 5 * time.Second
)

var (
	// ErrSelfConnection is returned when the remote version message echoes
	// the nonce of the local one.
	ErrSelfConnection = errors.New("disconnecting peer connected to self")

	// ErrUnexpectedMessage is returned in strict mode when the remote peer
	// sends a command other than version or verack before the handshake
	// completes.
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrTruncatedPayload is returned when the stream ends before the
	// payload announced by a message header has been received.
	ErrTruncatedPayload = errors.New("truncated message payload")

	// aLongTimeAgo is a non-zero time in the past used to interrupt
	// blocked reads and writes.
	aLongTimeAgo = time.Unix(1, 0)
)

// State is the position of a connection in the handshake.
type State uint8

// These constants define the handshake states.
const (
	StateInit State = iota
	StateVersionSent
	StateAwaitingPeerResponses
	StateComplete
	StateFailed
)

// Map of State values back to their names for pretty printing.
var stateStrings = map[State]string{
	StateInit:                  "init",
	StateVersionSent:           "version sent",
	StateAwaitingPeerResponses: "awaiting peer responses",
	StateComplete:              "complete",
	StateFailed:                "failed",
}

// String returns the State in human-readable form.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown State (%d)", uint8(s))
}

// Outcome classifies how a handshake attempt ended.
type Outcome uint8

// These constants define the possible handshake outcomes.
const (
	// Success means both the remote version and verack were received.
	Success Outcome = iota

	// ConnectFailed means the connection could not be established.
	ConnectFailed

	// Timeout means the handshake did not complete within its budget.
	Timeout

	// ChecksumMismatch means a payload was corrupted or truncated.
	ChecksumMismatch

	// ProtocolMismatch means a frame carried the wrong network magic or a
	// message could not be parsed.
	ProtocolMismatch

	// UnexpectedMessage means a strict handshake saw a command other than
	// version or verack.
	UnexpectedMessage

	// SelfConnection means the remote version echoed the local nonce.
	SelfConnection

	// IoError means reading from or writing to an established connection
	// failed.
	IoError
)

// Map of Outcome values back to their names for pretty printing.
var outcomeStrings = map[Outcome]string{
	Success:           "success",
	ConnectFailed:     "connect failed",
	Timeout:           "timeout",
	ChecksumMismatch:  "checksum mismatch",
	ProtocolMismatch:  "protocol mismatch",
	UnexpectedMessage: "unexpected message",
	SelfConnection:    "self connection",
	IoError:           "io error",
}

// String returns the Outcome in human-readable form.
func (o Outcome) String() string {
	if s, ok := outcomeStrings[o]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Outcome (%d)", uint8(o))
}

// Result is the terminal report of one handshake attempt.
type Result struct {
	// Addr is the target address as given to Handshake or Negotiate.
	Addr string

	// Outcome classifies the end of the attempt.
	Outcome Outcome

	// Err is the underlying error.  It is nil on success.
	Err error

	// State is StateComplete on success and StateFailed otherwise.
	State State

	// PeerVersion is the version message received from the remote peer,
	// if one was received before the attempt ended.
	PeerVersion *wire.MsgVersion

	// Elapsed is the wall time the attempt took, including the dial.
	Elapsed time.Duration
}

// DialFunc establishes a connection to addr.  It must give up once ctx is
// done, which carries the handshake deadline.  It matches the DialContext
// method of net.Dialer.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config is the struct to hold configuration options useful to a handshake.
// It is copied by each attempt so it may be shared between concurrent ones.
type Config struct {
	// ChainParams identifies which chain parameters the peer is associated
	// with.  It is highly recommended to specify this field, however it can
	// be omitted in which case the test network will be used.
	ChainParams *chaincfg.Params

	// ProtocolVersion specifies the maximum protocol version to use and
	// advertise.  This field can be omitted in which case
	// peer.MaxProtocolVersion will be used.
	ProtocolVersion uint32

	// Services specifies which services to advertise as supported by the
	// local peer.  This field can be omitted in which case it will be 0
	// and therefore advertise no supported services.
	Services wire.ServiceFlag

	// UserAgentName specifies the user agent name to advertise.  It is
	// highly recommended to specify this value.
	UserAgentName string

	// UserAgentVersion specifies the user agent version to advertise.  It
	// is highly recommended to specify this value and that it follows the
	// form "major.minor.revision" e.g. "2.6.41".
	UserAgentVersion string

	// UserAgentComments specify the user agent comments to advertise.
	// These values must not contain the illegal characters specified in
	// BIP 14: '/', ':', '(', ')'.
	UserAgentComments []string

	// StartHeight is the best block height advertised to the remote peer.
	StartHeight int32

	// Relay asks the remote peer to announce transactions.
	Relay bool

	// Timeout bounds the whole attempt, dial included.  Zero selects
	// DefaultTimeout.
	Timeout time.Duration

	// Dial connects to targets.  Nil selects a net.Dialer.
	Dial DialFunc

	// StrictHandshake fails the attempt with UnexpectedMessage when the
	// remote peer sends any command other than version or verack before
	// the handshake completes.
	StrictHandshake bool
}

// withDefaults returns a copy of cfg with unset fields filled in.
func (cfg *Config) withDefaults() Config {
	c := *cfg
	if c.ChainParams == nil {
		c.ChainParams = &chaincfg.TestNet3Params
	}
	if c.ProtocolVersion == 0 || c.ProtocolVersion > MaxProtocolVersion {
		c.ProtocolVersion = MaxProtocolVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Dial == nil {
		var dialer net.Dialer
		c.Dial = dialer.DialContext
	}
	return c
}

// negotiator runs the handshake state machine over one connection.  It is
// owned by a single goroutine.
type negotiator struct {
	cfg   Config
	conn  net.Conn
	addr  string
	nonce uint64
	state State

	// protocolVersion is the version used to encode and decode messages.
	// It starts at the configured version and drops to the remote one
	// once its version message is known.
	protocolVersion uint32

	versionReceived bool
	verAckReceived  bool
	peerVersion     *wire.MsgVersion
}

// String returns the target address of the negotiation.
func (n *negotiator) String() string {
	return n.addr
}

// newNetAddress attempts to extract the IP address and port from the passed
// net.Addr interface and create a bitcoin NetAddress structure using that
// information.  Addresses which carry no usable IP fall back to the target
// string and finally to the unspecified address.
func newNetAddress(addr net.Addr, target string, services wire.ServiceFlag) *wire.NetAddress {
	// addr will be a net.TCPAddr when not using a proxy.
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return wire.NewNetAddressIPPort(tcpAddr.IP, uint16(tcpAddr.Port),
			services)
	}

	// addr will be a socks.ProxiedAddr when using a proxy.
	if proxiedAddr, ok := addr.(*socks.ProxiedAddr); ok {
		ip := net.ParseIP(proxiedAddr.Host)
		if ip == nil {
			ip = net.IPv4zero
		}
		return wire.NewNetAddressIPPort(ip, uint16(proxiedAddr.Port),
			services)
	}

	// Try to parse the target as an IP literal.  Hostnames such as onion
	// addresses are deliberately not resolved.
	host, portStr, err := net.SplitHostPort(target)
	if err == nil {
		ip := net.ParseIP(host)
		port, err := strconv.ParseUint(portStr, 10, 16)
		if ip != nil && err == nil {
			return wire.NewNetAddressIPPort(ip, uint16(port), services)
		}
	}

	return wire.NewNetAddressIPPort(net.IPv4zero, 0, services)
}

// localMsgVersion builds the version message advertised to the remote peer.
func (n *negotiator) localMsgVersion() (*wire.MsgVersion, error) {
	theirNA := newNetAddress(n.conn.RemoteAddr(), n.addr, 0)

	// The local address is not advertised, matching what bitcoind sends
	// for outbound connections.
	ourNA := wire.NewNetAddressIPPort(net.IPv4zero, 0, n.cfg.Services)

	msg := wire.NewMsgVersion(ourNA, theirNA, n.nonce, n.cfg.StartHeight)
	if n.cfg.UserAgentName != "" {
		err := msg.AddUserAgent(n.cfg.UserAgentName,
			n.cfg.UserAgentVersion, n.cfg.UserAgentComments...)
		if err != nil {
			return nil, err
		}
	}

	// Advertise the services flag
	msg.Services = n.cfg.Services

	// Advertise our max supported protocol version.
	msg.ProtocolVersion = int32(n.cfg.ProtocolVersion)

	// Advertise if inv messages for transactions are desired.
	msg.Relay = n.cfg.Relay

	return msg, nil
}

// readFrame reads the next frame from the remote peer with logging.
func (n *negotiator) readFrame() (string, []byte, error) {
	read, command, payload, err := wire.ReadFrame(n.conn,
		n.cfg.ChainParams.Net)
	if err != nil {
		// The header arrived but the stream ended inside the payload.
		if read >= wire.MessageHeaderSize && (err == io.EOF ||
			err == io.ErrUnexpectedEOF) {

			return "", nil, fmt.Errorf("%w: %v", ErrTruncatedPayload,
				err)
		}
		return "", nil, err
	}

	log.Tracef("%v", newLogClosure(func() string {
		return fmt.Sprintf("Received %s (%d bytes) from %s:\n%s",
			command, read, n, spew.Sdump(payload))
	}))

	return command, payload, nil
}

// decodeMessage parses a payload received for command with logging.
func (n *negotiator) decodeMessage(command string, payload []byte) (wire.Message, error) {
	msg, err := wire.DecodeMessage(command, payload, n.protocolVersion)
	if err != nil {
		return nil, err
	}

	// Use closures to log expensive operations so they are only run when
	// the logging level requires it.
	log.Debugf("%v", newLogClosure(func() string {
		// Debug summary of message.
		summary := messageSummary(msg)
		if len(summary) > 0 {
			summary = " (" + summary + ")"
		}
		return fmt.Sprintf("Received %v%s from %s",
			msg.Command(), summary, n)
	}))
	log.Tracef("%v", newLogClosure(func() string {
		return spew.Sdump(msg)
	}))

	return msg, nil
}

// writeMessage sends a bitcoin message to the peer with logging.
func (n *negotiator) writeMessage(msg wire.Message) error {
	// Use closures to log expensive operations so they are only run when the
	// logging level requires it.
	log.Debugf("%v", newLogClosure(func() string {
		// Debug summary of message.
		summary := messageSummary(msg)
		if len(summary) > 0 {
			summary = " (" + summary + ")"
		}
		return fmt.Sprintf("Sending %v%s to %s", msg.Command(),
			summary, n)
	}))
	log.Tracef("%v", newLogClosure(func() string {
		return spew.Sdump(msg)
	}))
	log.Tracef("%v", newLogClosure(func() string {
		var buf bytes.Buffer
		err := wire.WriteMessage(&buf, msg, n.protocolVersion,
			n.cfg.ChainParams.Net)
		if err != nil {
			return err.Error()
		}
		return spew.Sdump(buf.Bytes())
	}))

	return wire.WriteMessage(n.conn, msg, n.protocolVersion,
		n.cfg.ChainParams.Net)
}

// handleVersionMsg is invoked when the remote version message arrives.  It
// detects self connections, negotiates the protocol version down to the
// remote one and acknowledges the message.
func (n *negotiator) handleVersionMsg(msg *wire.MsgVersion) error {
	// Detect self connections.
	if msg.Nonce == n.nonce {
		return ErrSelfConnection
	}

	n.peerVersion = msg
	n.versionReceived = true

	// Negotiate the protocol version.
	if msg.ProtocolVersion > 0 &&
		uint32(msg.ProtocolVersion) < n.protocolVersion {

		n.protocolVersion = uint32(msg.ProtocolVersion)
	}
	log.Debugf("Negotiated protocol version %d for peer %s",
		n.protocolVersion, n)

	// The verack goes out right away rather than after the remote one.
	return n.writeMessage(wire.NewMsgVerAck())
}

// handlePingMsg replies to a ping received during the handshake.  Pings from
// peers at or below BIP0031Version carry no nonce and need no reply.
func (n *negotiator) handlePingMsg(msg *wire.MsgPing) error {
	if n.protocolVersion <= wire.BIP0031Version {
		return nil
	}
	return n.writeMessage(wire.NewMsgPong(msg.Nonce))
}

// handleFrame advances the state machine with one received frame.
func (n *negotiator) handleFrame(command string, payload []byte) error {
	switch command {
	case wire.CmdVersion:
		if n.versionReceived {
			log.Debugf("Ignoring duplicate version from %s", n)
			return nil
		}
		msg, err := n.decodeMessage(command, payload)
		if err != nil {
			return err
		}
		return n.handleVersionMsg(msg.(*wire.MsgVersion))

	case wire.CmdVerAck:
		if n.verAckReceived {
			log.Debugf("Ignoring duplicate verack from %s", n)
			return nil
		}
		if _, err := n.decodeMessage(command, payload); err != nil {
			return err
		}
		n.verAckReceived = true
		return nil
	}

	if n.cfg.StrictHandshake {
		return fmt.Errorf("%w %q before handshake completed",
			ErrUnexpectedMessage, command)
	}

	msg, err := n.decodeMessage(command, payload)
	switch {
	case errors.Is(err, wire.ErrUnknownMessage):
		log.Debugf("Ignoring %q (%d bytes) from %s during handshake",
			command, len(payload), n)
		return nil

	case err != nil:
		log.Debugf("Ignoring malformed %q from %s during handshake: %v",
			command, n, err)
		return nil
	}

	if ping, ok := msg.(*wire.MsgPing); ok {
		return n.handlePingMsg(ping)
	}
	return nil
}

// negotiate runs the handshake until it completes or fails.
func (n *negotiator) negotiate() error {
	nonce, err := wire.RandomUint64()
	if err != nil {
		return err
	}
	n.nonce = nonce

	// Send our version information.
	verMsg, err := n.localMsgVersion()
	if err != nil {
		return err
	}
	if err := n.writeMessage(verMsg); err != nil {
		return err
	}
	n.state = StateVersionSent

	// Wait for their version and acknowledgement in whatever order they
	// arrive.
	n.state = StateAwaitingPeerResponses
	for !n.versionReceived || !n.verAckReceived {
		command, payload, err := n.readFrame()
		if err != nil {
			return err
		}
		if err := n.handleFrame(command, payload); err != nil {
			return err
		}
	}

	n.state = StateComplete
	return nil
}

// classifyError maps a negotiation error onto an Outcome.  ctx is the
// attempt's context.
func classifyError(ctx context.Context, err error) Outcome {
	switch {
	case errors.Is(err, ErrSelfConnection):
		return SelfConnection

	case errors.Is(err, ErrUnexpectedMessage):
		return UnexpectedMessage

	case errors.Is(err, ErrTruncatedPayload),
		wire.IsErrorCode(err, wire.ErrChecksumMismatch):
		return ChecksumMismatch
	}

	var merr *wire.MessageError
	if errors.As(err, &merr) {
		return ProtocolMismatch
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout
	}
	if ctx.Err() == nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return Timeout
		}
	}

	return IoError
}

// Negotiate runs the handshake over an established connection to addr and
// returns its result.  conn is closed before Negotiate returns.  The attempt
// is bounded by both ctx and cfg.Timeout.
func Negotiate(ctx context.Context, cfg *Config, conn net.Conn, addr string) *Result {
	c := cfg.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	return negotiate(ctx, &c, conn, addr, time.Now())
}

// negotiate runs the state machine over conn.  ctx must already carry the
// attempt deadline.
func negotiate(ctx context.Context, cfg *Config, conn net.Conn, addr string,
	start time.Time) *Result {

	defer conn.Close()

	// Bound every read and write by the attempt deadline and interrupt
	// them early if the context is canceled.
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return failed(ctx, addr, start, StateInit, nil, err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	n := &negotiator{
		cfg:             *cfg,
		conn:            conn,
		addr:            addr,
		state:           StateInit,
		protocolVersion: cfg.ProtocolVersion,
	}

	if err := n.negotiate(); err != nil {
		return failed(ctx, addr, start, n.state, n.peerVersion, err)
	}

	log.Debugf("Handshake with %s (%s) complete in %v", n,
		n.peerVersion.UserAgent, time.Since(start))

	return &Result{
		Addr:        addr,
		Outcome:     Success,
		State:       StateComplete,
		PeerVersion: n.peerVersion,
		Elapsed:     time.Since(start),
	}
}

// failed builds the Result of an attempt that ended with err while in state.
func failed(ctx context.Context, addr string, start time.Time, state State,
	peerVersion *wire.MsgVersion, err error) *Result {

	outcome := classifyError(ctx, err)

	// Report a canceled attempt as such rather than as the deadline error
	// used to interrupt it.
	if errors.Is(ctx.Err(), context.Canceled) && outcome == IoError {
		err = fmt.Errorf("%w: %v", context.Canceled, err)
	}

	log.Debugf("Handshake with %s failed in state %v: %v: %v", addr, state,
		outcome, err)

	return &Result{
		Addr:        addr,
		Outcome:     outcome,
		Err:         err,
		State:       StateFailed,
		PeerVersion: peerVersion,
		Elapsed:     time.Since(start),
	}
}

// Handshake dials addr and runs the handshake over the new connection.  The
// dial counts against cfg.Timeout.
func Handshake(ctx context.Context, cfg *Config, addr string) *Result {
	start := time.Now()
	c := cfg.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	log.Debugf("Attempting connection to %s", addr)

	if err := ctx.Err(); err != nil {
		return dialFailed(ctx, addr, start, err)
	}

	conn, err := c.Dial(ctx, "tcp", addr)
	if err != nil {
		return dialFailed(ctx, addr, start, err)
	}

	log.Debugf("Connected to %s", addr)
	return negotiate(ctx, &c, conn, addr, start)
}

// dialFailed builds the Result of an attempt whose dial failed.
func dialFailed(ctx context.Context, addr string, start time.Time, err error) *Result {
	outcome := ConnectFailed
	var nerr net.Error
	switch {
	// A canceled dial is reported the same way as a canceled handshake.
	case errors.Is(ctx.Err(), context.Canceled):
		outcome = IoError
		if !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", context.Canceled, err)
		}

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &nerr) && nerr.Timeout():

		outcome = Timeout
	}

	log.Debugf("Failed to connect to %s: %v", addr, err)

	return &Result{
		Addr:    addr,
		Outcome: outcome,
		Err:     err,
		State:   StateFailed,
		Elapsed: time.Since(start),
	}
}
