// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in a
// version message (MsgVersion).
const MaxUserAgentLen = 256

// DefaultUserAgent for wire in the stack
const DefaultUserAgent = "/btcwire:0.5.0/"

// MsgVersion implements the Message interface and represents a bitcoin version
// message.  It is used for a peer to advertise itself as soon as an outbound
// connection is made.  The remote peer then uses this information along with
// its own to negotiate.  The remote peer must then respond with a version
// message of its own containing the negotiated values followed by a verack
// message (MsgVerAck).  This exchange must take place before any further
// communication is allowed to proceed.
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion int32

	// Bitfield which identifies the enabled services.
	Services ServiceFlag

	// Time the message was generated.  This is encoded as an int64 on the wire.
	Timestamp time.Time

	// Address of the remote peer.
	AddrYou NetAddress

	// Address of the local peer.
	AddrMe NetAddress

	// Unique value associated with message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated messsage.  This is a encoded as a varString
	// on the wire.  This has a max length of MaxUserAgentLen.
	UserAgent string

	// Last block seen by the generator of the version message.
	LastBlock int32

	// Announce transactions to the peer.  Only present on the wire when
	// ProtocolVersion is at least BIP0037Version.
	Relay bool
}

// HasService returns whether the specified service is supported by the peer
// that generated the message.
func (msg *MsgVersion) HasService(service ServiceFlag) bool {
	return msg.Services&service == service
}

// AddService adds service as a supported service by the peer generating the
// message.
func (msg *MsgVersion) AddService(service ServiceFlag) {
	msg.Services |= service
}

// hasAddrFromFields reports whether the sender address, nonce, user agent
// and start height may follow the receiver address for the advertised
// protocol version.
func (msg *MsgVersion) hasAddrFromFields() bool {
	return msg.ProtocolVersion >= int32(AddrFromVersion)
}

// hasRelayField reports whether the relay flag is part of the encoding for
// the advertised protocol version.
func (msg *MsgVersion) hasRelayField() bool {
	return msg.ProtocolVersion >= int32(BIP0037Version)
}

// BtcDecode decodes r using the bitcoin protocol encoding into the receiver.
// The version message is special in that the protocol version hasn't been
// negotiated yet.  As a result, the pver field is ignored and any fields which
// are added in new versions are optional.  This also mean that r must be a
// *bytes.Buffer so the number of remaining bytes can be ascertained.
//
// This is part of the Message interface implementation.
func (msg *MsgVersion) BtcDecode(r io.Reader, pver uint32) error {
	buf, ok := r.(*bytes.Buffer)
	if !ok {
		return fmt.Errorf("MsgVersion.BtcDecode reader is not a " +
			"*bytes.Buffer")
	}

	malformed := func(field string, err error) error {
		str := fmt.Sprintf("unable to read %s: %v", field, err)
		return messageError("MsgVersion.BtcDecode", ErrMalformedPayload,
			str)
	}

	var timestamp int64
	err := readElements(buf, &msg.ProtocolVersion, &msg.Services,
		&timestamp)
	if err != nil {
		return malformed("protocol version, services or timestamp", err)
	}
	msg.Timestamp = time.Unix(timestamp, 0)

	err = readNetAddress(buf, pver, &msg.AddrYou)
	if err != nil {
		return malformed("receiver address", err)
	}

	// Peers older than AddrFromVersion stop after the receiver address and
	// anything trailing it is ignored.
	if !msg.hasAddrFromFields() {
		return nil
	}

	// The from address, nonce, and user agent fields are only considered
	// present if there are bytes remaining in the message.
	if buf.Len() > 0 {
		err = readNetAddress(buf, pver, &msg.AddrMe)
		if err != nil {
			return malformed("sender address", err)
		}
	}
	if buf.Len() > 0 {
		err = readElement(buf, &msg.Nonce)
		if err != nil {
			return malformed("nonce", err)
		}
	}
	if buf.Len() > 0 {
		userAgent, err := readUserAgent(buf, pver)
		if err != nil {
			return err
		}
		msg.UserAgent = userAgent
	}

	// Protocol versions >= 209 added a last known block field.  It is only
	// considered present if there are bytes remaining in the message.
	if buf.Len() > 0 {
		err = readElement(buf, &msg.LastBlock)
		if err != nil {
			return malformed("start height", err)
		}
	}

	// There was no relay transactions field before BIP0037Version, but
	// the default behavior prior to the addition of the field was to always
	// relay transactions.  A missing field is not an error.
	msg.Relay = false
	if buf.Len() > 0 && msg.hasRelayField() {
		err = readElement(buf, &msg.Relay)
		if err != nil {
			return malformed("relay flag", err)
		}
	}

	return nil
}

// readUserAgent reads the compact size prefixed user agent from buf, making
// sure the declared length fits both the remaining payload and
// MaxUserAgentLen before allocating.
func readUserAgent(buf *bytes.Buffer, pver uint32) (string, error) {
	count, err := ReadVarInt(buf, pver)
	if err != nil {
		str := fmt.Sprintf("unable to read user agent length: %v", err)
		return "", messageError("MsgVersion.BtcDecode",
			ErrMalformedPayload, str)
	}
	if count > uint64(buf.Len()) {
		str := fmt.Sprintf("user agent length %d exceeds remaining "+
			"payload of %d bytes", count, buf.Len())
		return "", messageError("MsgVersion.BtcDecode",
			ErrMalformedPayload, str)
	}
	if count > MaxUserAgentLen {
		str := fmt.Sprintf("user agent too long [len %v, max %v]",
			count, MaxUserAgentLen)
		return "", messageError("MsgVersion.BtcDecode",
			ErrMalformedPayload, str)
	}

	return string(buf.Next(int(count))), nil
}

// BtcEncode encodes the receiver to w using the bitcoin protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgVersion) BtcEncode(w io.Writer, pver uint32) error {
	err := validateUserAgent(msg.UserAgent)
	if err != nil {
		return err
	}

	err = writeElements(w, msg.ProtocolVersion, msg.Services,
		msg.Timestamp.Unix())
	if err != nil {
		return err
	}

	err = writeNetAddress(w, pver, &msg.AddrYou)
	if err != nil {
		return err
	}

	err = writeNetAddress(w, pver, &msg.AddrMe)
	if err != nil {
		return err
	}

	err = writeElement(w, msg.Nonce)
	if err != nil {
		return err
	}

	err = WriteVarString(w, pver, msg.UserAgent)
	if err != nil {
		return err
	}

	err = writeElement(w, msg.LastBlock)
	if err != nil {
		return err
	}

	// The relay flag only exists for BIP0037Version and later.
	if msg.hasRelayField() {
		return writeElement(w, msg.Relay)
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgVersion) Command() string {
	return CmdVersion
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgVersion) MaxPayloadLength(pver uint32) uint32 {
	// Protocol version 4 bytes + services 8 bytes + timestamp 8 bytes +
	// remote and local net addresses + nonce 8 bytes + length of user
	// agent (varInt) + max allowed useragent length + last block 4 bytes +
	// relay transactions flag 1 byte.
	return 33 + (netAddressSize * 2) + MaxVarIntPayload +
		MaxUserAgentLen
}

// NewMsgVersion returns a new bitcoin version message that conforms to the
// Message interface using the passed parameters and defaults for the remaining
// fields.
func NewMsgVersion(me *NetAddress, you *NetAddress, nonce uint64,
	lastBlock int32) *MsgVersion {

	// Limit the timestamp to one second precision since the protocol
	// doesn't support better.
	return &MsgVersion{
		ProtocolVersion: int32(ProtocolVersion),
		Services:        0,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		AddrYou:         *you,
		AddrMe:          *me,
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
		LastBlock:       lastBlock,
		Relay:           false,
	}
}

// validateUserAgent checks userAgent length against MaxUserAgentLen
func validateUserAgent(userAgent string) error {
	if len(userAgent) > MaxUserAgentLen {
		str := fmt.Sprintf("user agent too long [len %v, max %v]",
			len(userAgent), MaxUserAgentLen)
		return messageError("MsgVersion", ErrPayloadTooLarge, str)
	}
	return nil
}

// AddUserAgent adds a user agent to the user agent string for the version
// message.  The version string is not defined to any strict format, although
// it is recommended to use the form "major.minor.revision" e.g. "2.6.41".
func (msg *MsgVersion) AddUserAgent(name string, version string,
	comments ...string) error {

	newUserAgent := fmt.Sprintf("%s:%s", name, version)
	if len(comments) != 0 {
		newUserAgent = fmt.Sprintf("%s(%s)", newUserAgent,
			strings.Join(comments, "; "))
	}
	newUserAgent = fmt.Sprintf("%s%s/", msg.UserAgent, newUserAgent)
	err := validateUserAgent(newUserAgent)
	if err != nil {
		return err
	}
	msg.UserAgent = newUserAgent
	return nil
}
