// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the subset of the bitcoin wire protocol needed to
negotiate a connection with a remote peer.

Every message on the wire is wrapped in a 24 byte header:

	magic    4 bytes  network identifier, little endian
	command 12 bytes  ASCII command, null padded
	length   4 bytes  payload length, little endian
	checksum 4 bytes  first four bytes of double sha256 of the payload

EncodeFrame and ReadFrame work on raw command/payload pairs, so callers can
frame and skip over messages this package has no concrete type for.
WriteMessage and ReadMessage layer the typed Message implementations on top.

# Messages

The implemented messages are MsgVersion, MsgVerAck, MsgPing, MsgPong,
MsgSendAddrV2 and MsgWTxIdRelay.  The version message is the only one with a
non-trivial layout; fields added by later protocol versions are optional on
decode and are only considered present when bytes remain in the payload.

# Errors

Errors returned by this package are either the raw errors of the underlying
io.Reader/io.Writer or of type *MessageError.  The ErrorCode field of a
MessageError allows callers to distinguish a checksum mismatch from a message
for another network or an unparseable payload:

	if wire.IsErrorCode(err, wire.ErrChecksumMismatch) {
		// Corrupt frame.
	}
*/
package wire
