// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"fmt"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcprobe/wire"
)

// log is a logger that is initialized with no output filters.  This
// means the package will not perform any logging by default until the caller
// requests it.
var log btclog.Logger

// The default amount of logging is none.
func init() {
	DisableLog()
}

// DisableLog disables all library log output.  Logging output is disabled
// by default until UseLogger is called.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// logClosure is a closure that can be printed with %v to be used to
// generate expensive-to-create data for a detailed log level and avoid doing
// the work if the data isn't printed.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

// messageSummary returns a human-readable string which summarizes a message.
// Not all messages have or need a summary.  This is used for debug logging.
func messageSummary(msg wire.Message) string {
	switch msg := msg.(type) {
	case *wire.MsgVersion:
		return fmt.Sprintf("agent %s, pver %d, block %d, services %v",
			msg.UserAgent, msg.ProtocolVersion, msg.LastBlock,
			msg.Services)

	case *wire.MsgPing:
		return fmt.Sprintf("nonce %d", msg.Nonce)

	case *wire.MsgPong:
		return fmt.Sprintf("nonce %d", msg.Nonce)

	case *wire.MsgSendAddrV2:
		return "prefers addrv2"

	case *wire.MsgWTxIdRelay:
		return "relays by wtxid"
	}

	// No summary for other messages.
	return ""
}
