// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
)

// ErrInvalidNetAddr describes an error that indicates the caller didn't specify
// a TCP address as required.
var ErrInvalidNetAddr = errors.New("provided net.Addr is not a net.TCPAddr")

// netAddressSize is the number of bytes a NetAddress occupies inside a
// version message: services 8 bytes + ip 16 bytes + port 2 bytes.
const netAddressSize = 26

// NetAddress defines information about a peer on the network including the
// services it supports, its IP address, and port.  This is the form used by
// the version message, which does not carry the last-seen timestamp.
type NetAddress struct {
	// Bitfield which identifies the services supported by the address.
	Services ServiceFlag

	// IP address of the peer.
	IP net.IP

	// Port the peer is using.  This is encoded in big endian on the wire
	// which differs from most everything else.
	Port uint16
}

// HasService returns whether the specified service is supported by the address.
func (na *NetAddress) HasService(service ServiceFlag) bool {
	return na.Services&service == service
}

// AddService adds service as a supported service by the peer generating the
// message.
func (na *NetAddress) AddService(service ServiceFlag) {
	na.Services |= service
}

// String returns the address in host:port form.
func (na *NetAddress) String() string {
	ip := na.IP
	if ip == nil {
		ip = net.IPv6zero
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(na.Port)))
}

// NewNetAddressIPPort returns a new NetAddress using the provided IP, port, and
// supported services.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		Services: services,
		IP:       ip,
		Port:     port,
	}
}

// NewNetAddress returns a new NetAddress using the provided TCP address and
// supported services.
//
// Note that addr must be a net.TCPAddr.  An ErrInvalidNetAddr is returned
// if it is not.
func NewNetAddress(addr net.Addr, services ServiceFlag) (*NetAddress, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, ErrInvalidNetAddr
	}

	na := NewNetAddressIPPort(tcpAddr.IP, uint16(tcpAddr.Port), services)
	return na, nil
}

// readNetAddress reads an encoded NetAddress from r.
func readNetAddress(r io.Reader, pver uint32, na *NetAddress) error {
	var ip [16]byte
	err := readElements(r, &na.Services, &ip)
	if err != nil {
		return err
	}

	// Sigh.  Bitcoin protocol mixes little and big endian.
	var port uint16
	if err := binary.Read(r, bigEndian, &port); err != nil {
		return err
	}

	na.IP = net.IP(ip[:])
	na.Port = port
	return nil
}

// writeNetAddress serializes a NetAddress to w.  IPv4 addresses are written
// in their IPv4-mapped IPv6 form.
func writeNetAddress(w io.Writer, pver uint32, na *NetAddress) error {
	// Ensure to always write 16 bytes even if the ip is nil.
	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}
	err := writeElements(w, na.Services, ip)
	if err != nil {
		return err
	}

	// Sigh.  Bitcoin protocol mixes little and big endian.
	return binary.Write(w, bigEndian, na.Port)
}
