// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sampleconfig provides a single constant that contains the contents of
the sample configuration file for btcprobe.  It is written out as the default
configuration file on first run so every option is documented next to the
place it is set.
*/
package sampleconfig
