// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
btcprobe performs the Bitcoin peer-to-peer version handshake against one or
more nodes at once and reports whether each one completed it.

Every target gets its own connection.  The probe sends a version message,
waits for the remote version and verack in either order, acknowledges the
remote version and hangs up.  Nothing beyond the handshake is exchanged.

One line is printed per target in the order given:

	seed.example.org:8333: OK /Satoshi:27.0.0/ version=70016 height=850000 services=SFNodeNetwork|SFNodeWitness
	192.0.2.7:8333: FAILED timeout: i/o timeout

The exit status is 0 when every handshake succeeded, 1 when any failed and 2
when the configuration is invalid.

Usage:

	btcprobe [OPTIONS] host[:port] ...

Application Options:
	  -V, --version          Display version information and exit
	  -C, --configfile=      Path to configuration file
	      --logdir=          Directory to log output
	      --nofilelogging    Disable file logging
	  -d, --debuglevel=      Logging level for all subsystems {trace, debug,
	                         info, warn, error, critical} -- You may also
	                         specify <subsystem>=<level>,<subsystem2>=<level>,...
	                         to set the log level for individual subsystems --
	                         Use show to list available subsystems (info)
	  -n, --network=         Network to probe {main, test, signet, regtest}
	                         (main)
	  -t, --timeout=         Time allowed for each handshake, connection
	                         included (5s)
	      --maxconcurrent=   Max number of handshakes in flight at once -- 0
	                         means no limit
	      --proxy=           Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)
	      --proxyuser=       Username for proxy server
	      --proxypass=       Password for proxy server
	      --protocolversion= Protocol version to advertise (70016)
	      --useragent=       Comment to add to the user agent -- See BIP 14
	                         for more information.
	      --strict           Fail handshakes that see any command other than
	                         version or verack

Help Options:
	  -h, --help           Show this help message

Targets without a port use the default port of the selected network and
duplicate targets are probed once.
*/
package main
