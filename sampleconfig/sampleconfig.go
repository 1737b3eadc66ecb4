// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

// FileContents is a string containing the commented example config for
// btcprobe.
const FileContents = `[Application Options]

; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------

; The network to probe: main, test, signet or regtest.  Targets given without a
; port use the default port of the selected network.
; network=main

; How long a single handshake may take, connection included.  Valid time units
; are {ms, s, m}.
; timeout=5s

; The maximum number of handshakes in flight at once.  0 means no limit.
; maxconcurrent=0

; Connect via a SOCKS5 proxy (eg. 127.0.0.1:9050).
; proxy=127.0.0.1:9050

; Username and password for the proxy server, if required.
; proxyuser=
; proxypass=


; ------------------------------------------------------------------------------
; Handshake settings
; ------------------------------------------------------------------------------

; The protocol version to advertise.  Peers that speak an older version are
; negotiated down.
; protocolversion=70016

; Comments to append to the advertised user agent.  May be repeated.
; useragent=

; Fail a handshake when the remote node sends any command other than version or
; verack before the handshake completes.
; strict=1


; ------------------------------------------------------------------------------
; Debug
; ------------------------------------------------------------------------------

; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use btcprobe --debuglevel=show to list
; available subsystems.
; debuglevel=info

; The directory to store log files in.
; logdir=

; Disable writing a log file.
; nofilelogging=1
`
