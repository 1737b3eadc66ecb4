// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "testing"

// TestServiceFlagStringer tests the stringized output for service flag types.
func TestServiceFlagStringer(t *testing.T) {
	tests := []struct {
		in   ServiceFlag
		want string
	}{
		{0, "0x0"},
		{SFNodeNetwork, "SFNodeNetwork"},
		{SFNodeGetUTXO, "SFNodeGetUTXO"},
		{SFNodeBloom, "SFNodeBloom"},
		{SFNodeWitness, "SFNodeWitness"},
		{SFNodeXthin, "SFNodeXthin"},
		{SFNodeCF, "SFNodeCF"},
		{SFNodeNetworkLimited, "SFNodeNetworkLimited"},
		{SFNodeP2PV2, "SFNodeP2PV2"},
		{SFNodeNetwork | SFNodeWitness | SFNodeNetworkLimited,
			"SFNodeNetwork|SFNodeWitness|SFNodeNetworkLimited"},
		{1 << 5, "0x20"},
		{0xffffffff, "SFNodeNetwork|SFNodeGetUTXO|SFNodeBloom|SFNodeWitness|" +
			"SFNodeXthin|SFNodeCF|SFNodeNetworkLimited|SFNodeP2PV2|" +
			"0xfffff3a0"},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		result := test.in.String()
		if result != test.want {
			t.Errorf("String #%d\n got: %s want: %s", i, result,
				test.want)
			continue
		}
	}
}

// TestBitcoinNetStringer tests the stringized output for bitcoin net types.
func TestBitcoinNetStringer(t *testing.T) {
	tests := []struct {
		in   BitcoinNet
		want string
	}{
		{MainNet, "MainNet"},
		{TestNet, "TestNet"},
		{TestNet3, "TestNet3"},
		{SigNet, "SigNet"},
		{0xffffffff, "Unknown BitcoinNet (4294967295)"},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		result := test.in.String()
		if result != test.want {
			t.Errorf("String #%d\n got: %s want: %s", i, result,
				test.want)
			continue
		}
	}
}

// TestErrorCodeStringer tests the stringized output for the ErrorCode type.
func TestErrorCodeStringer(t *testing.T) {
	tests := []struct {
		in   ErrorCode
		want string
	}{
		{ErrWrongNetwork, "ErrWrongNetwork"},
		{ErrChecksumMismatch, "ErrChecksumMismatch"},
		{ErrPayloadTooLarge, "ErrPayloadTooLarge"},
		{ErrCommandTooLong, "ErrCommandTooLong"},
		{ErrMalformedCommand, "ErrMalformedCommand"},
		{ErrMalformedPayload, "ErrMalformedPayload"},
		{ErrNonCanonicalVarInt, "ErrNonCanonicalVarInt"},
		{0xffff, "Unknown ErrorCode (65535)"},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		result := test.in.String()
		if result != test.want {
			t.Errorf("String #%d\n got: %s want: %s", i, result,
				test.want)
			continue
		}
	}
}
