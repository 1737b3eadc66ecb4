// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MessageHeaderSize is the number of bytes in a bitcoin message header.
// Bitcoin network (magic) 4 bytes + command 12 bytes + payload length 4 bytes +
// checksum 4 bytes.
const MessageHeaderSize = 24

// CommandSize is the fixed size of all commands in the common bitcoin message
// header.  Shorter commands must be zero padded.
const CommandSize = 12

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = (1024 * 1024 * 32) // 32MB

// Commands used in bitcoin message headers which describe the type of message.
const (
	CmdVersion    = "version"
	CmdVerAck     = "verack"
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdSendAddrV2 = "sendaddrv2"
	CmdWTxIdRelay = "wtxidrelay"
)

// ErrUnknownMessage is the error returned when decoding an unknown message.
var ErrUnknownMessage = errors.New("received unknown message")

// Message is an interface that describes a bitcoin message.  A type that
// implements Message has complete control over the representation of its data
// and may therefore contain additional or fewer fields than those which
// are used directly in the protocol encoded message.
type Message interface {
	BtcDecode(io.Reader, uint32) error
	BtcEncode(io.Writer, uint32) error
	Command() string
	MaxPayloadLength(uint32) uint32
}

// makeEmptyMessage creates a message of the appropriate concrete type based
// on the command.
func makeEmptyMessage(command string) (Message, error) {
	var msg Message
	switch command {
	case CmdVersion:
		msg = &MsgVersion{}

	case CmdVerAck:
		msg = &MsgVerAck{}

	case CmdPing:
		msg = &MsgPing{}

	case CmdPong:
		msg = &MsgPong{}

	case CmdSendAddrV2:
		msg = &MsgSendAddrV2{}

	case CmdWTxIdRelay:
		msg = &MsgWTxIdRelay{}

	default:
		return nil, ErrUnknownMessage
	}
	return msg, nil
}

// messageHeader defines the header structure for all bitcoin protocol messages.
type messageHeader struct {
	magic    BitcoinNet // 4 bytes
	command  string     // 12 bytes
	length   uint32     // 4 bytes
	checksum [4]byte    // 4 bytes
}

// readMessageHeader reads a bitcoin message header from r.
func readMessageHeader(r io.Reader) (int, *messageHeader, error) {
	// Since readElements doesn't return the amount of bytes read, attempt
	// to read the entire header into a buffer first in case there is a
	// short read so the proper amount of read bytes are known.  This works
	// since the header is a fixed size.
	var headerBytes [MessageHeaderSize]byte
	n, err := io.ReadFull(r, headerBytes[:])
	if err != nil {
		return n, nil, err
	}
	hr := bytes.NewReader(headerBytes[:])

	// Create and populate a messageHeader struct from the raw header bytes.
	hdr := messageHeader{}
	var command [CommandSize]byte
	readElements(hr, &hdr.magic, &command, &hdr.length, &hdr.checksum)

	// Strip trailing zeros from command string.
	hdr.command = string(bytes.TrimRight(command[:], "\x00"))

	return n, &hdr, nil
}

// checksum returns the first four bytes of the double sha256 of payload.
func checksum(payload []byte) [4]byte {
	var sum [4]byte
	copy(sum[:], chainhash.DoubleHashB(payload)[0:4])
	return sum
}

// EncodeFrame returns the complete wire representation of a message with the
// given command and raw payload: the 24 byte header for btcnet followed by
// the payload itself.
func EncodeFrame(btcnet BitcoinNet, command string, payload []byte) ([]byte, error) {
	// Enforce max command size.
	if len(command) > CommandSize {
		str := fmt.Sprintf("command [%s] is too long [max %v]",
			command, CommandSize)
		return nil, messageError("EncodeFrame", ErrCommandTooLong, str)
	}

	// Enforce maximum overall message payload.
	lenp := len(payload)
	if lenp > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			lenp, MaxMessagePayload)
		return nil, messageError("EncodeFrame", ErrPayloadTooLarge, str)
	}

	var cmd [CommandSize]byte
	copy(cmd[:], command)

	hdr := messageHeader{
		magic:    btcnet,
		command:  command,
		length:   uint32(lenp),
		checksum: checksum(payload),
	}

	buf := bytes.NewBuffer(make([]byte, 0, MessageHeaderSize+lenp))
	writeElements(buf, hdr.magic, cmd, hdr.length, hdr.checksum)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// ReadFrame reads the next complete message frame from r, blocking until a
// full frame is available or r fails.  It validates the network magic against
// btcnet, the payload size and the payload checksum, and returns the number
// of bytes read along with the command and raw payload.  The payload is not
// interpreted.
func ReadFrame(r io.Reader, btcnet BitcoinNet) (int, string, []byte, error) {
	totalBytes := 0
	n, hdr, err := readMessageHeader(r)
	totalBytes += n
	if err != nil {
		return totalBytes, "", nil, err
	}

	// Check for messages from the wrong bitcoin network.  The stream is
	// not resynchronized, so the payload is left unread.
	if hdr.magic != btcnet {
		str := fmt.Sprintf("message from other network [%v]", hdr.magic)
		return totalBytes, "", nil, messageError("ReadFrame",
			ErrWrongNetwork, str)
	}

	// Enforce maximum message payload.
	if hdr.length > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d "+
			"bytes.", hdr.length, MaxMessagePayload)
		return totalBytes, "", nil, messageError("ReadFrame",
			ErrPayloadTooLarge, str)
	}

	// Check for malformed commands.
	command := hdr.command
	if !utf8.ValidString(command) {
		str := fmt.Sprintf("invalid command %v", []byte(command))
		return totalBytes, "", nil, messageError("ReadFrame",
			ErrMalformedCommand, str)
	}

	// Read payload.
	payload := make([]byte, hdr.length)
	n, err = io.ReadFull(r, payload)
	totalBytes += n
	if err != nil {
		return totalBytes, "", nil, err
	}

	// Test checksum.
	sum := checksum(payload)
	if sum != hdr.checksum {
		str := fmt.Sprintf("payload checksum failed - header "+
			"indicates %x, but actual checksum is %x.",
			hdr.checksum, sum)
		return totalBytes, "", nil, messageError("ReadFrame",
			ErrChecksumMismatch, str)
	}

	return totalBytes, command, payload, nil
}

// encodePayload serializes msg and enforces its per-type size limit.
func encodePayload(msg Message, pver uint32) ([]byte, error) {
	var bw bytes.Buffer
	err := msg.BtcEncode(&bw, pver)
	if err != nil {
		return nil, err
	}
	payload := bw.Bytes()

	// Enforce maximum message payload based on the message type.
	mpl := msg.MaxPayloadLength(pver)
	if uint32(len(payload)) > mpl {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload size for "+
			"messages of type [%s] is %d.", len(payload),
			msg.Command(), mpl)
		return nil, messageError("WriteMessage", ErrPayloadTooLarge, str)
	}

	return payload, nil
}

// WriteMessageN writes a bitcoin Message to w including the necessary header
// information and returns the number of bytes written.    This function is the
// same as WriteMessage except it also returns the number of bytes written.
func WriteMessageN(w io.Writer, msg Message, pver uint32, btcnet BitcoinNet) (int, error) {
	payload, err := encodePayload(msg, pver)
	if err != nil {
		return 0, err
	}

	frame, err := EncodeFrame(btcnet, msg.Command(), payload)
	if err != nil {
		return 0, err
	}

	return w.Write(frame)
}

// WriteMessage writes a bitcoin Message to w including the necessary header
// information.  This function is the same as WriteMessageN except it
// doesn't return the number of bytes written.
func WriteMessage(w io.Writer, msg Message, pver uint32, btcnet BitcoinNet) error {
	_, err := WriteMessageN(w, msg, pver, btcnet)
	return err
}

// DecodeMessage parses payload as the message named by command.  It returns
// ErrUnknownMessage for commands this package does not implement.
func DecodeMessage(command string, payload []byte, pver uint32) (Message, error) {
	msg, err := makeEmptyMessage(command)
	if err != nil {
		return nil, err
	}

	// Check for maximum length based on the message type as a malicious client
	// could otherwise create a well-formed header and set the length to max
	// numbers in order to exhaust the machine's memory.
	mpl := msg.MaxPayloadLength(pver)
	if uint32(len(payload)) > mpl {
		str := fmt.Sprintf("payload exceeds max length - header "+
			"indicates %v bytes, but max payload size for "+
			"messages of type [%v] is %v.", len(payload), command, mpl)
		return nil, messageError("DecodeMessage", ErrPayloadTooLarge, str)
	}

	// Unmarshal message.  NOTE: This must be a *bytes.Buffer since the
	// MsgVersion BtcDecode function requires it.
	pr := bytes.NewBuffer(payload)
	err = msg.BtcDecode(pr, pver)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// ReadMessageN reads, validates, and parses the next bitcoin Message from r for
// the provided protocol version and bitcoin network.  It returns the number of
// bytes read in addition to the parsed Message and raw bytes which comprise the
// message.  Unknown commands are consumed in full and reported with
// ErrUnknownMessage.
func ReadMessageN(r io.Reader, pver uint32, btcnet BitcoinNet) (int, Message, []byte, error) {
	n, command, payload, err := ReadFrame(r, btcnet)
	if err != nil {
		return n, nil, nil, err
	}

	msg, err := DecodeMessage(command, payload, pver)
	if err != nil {
		return n, nil, nil, err
	}

	return n, msg, payload, nil
}

// ReadMessage reads, validates, and parses the next bitcoin Message from r for
// the provided protocol version and bitcoin network.  It returns the parsed
// Message and raw bytes which comprise the message.  This function only differs
// from ReadMessageN in that it doesn't return the number of bytes read.
func ReadMessage(r io.Reader, pver uint32, btcnet BitcoinNet) (Message, []byte, error) {
	_, msg, buf, err := ReadMessageN(r, pver, btcnet)
	return msg, buf, err
}
