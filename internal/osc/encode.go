// Package osc encodes OSC 1.0 messages and bundles.
//
// Only the argument types the bridge produces are supported: int32 ('i'),
// float32 ('f') and booleans, which are sent as int32 0/1 under the 'i' tag.
// Encoding never fails; callers hand in well-formed values.
package osc

import (
	"encoding/binary"
	"math"
)

// bundleTag is the 8-byte marker that opens every bundle, NUL included.
const bundleTag = "#bundle\x00"

// TimeTagImmediately is the OSC time tag meaning "dispatch on receipt".
const TimeTagImmediately uint64 = 1

// paddedLen returns the wire size of an n-byte string: the bytes, one NUL,
// then NULs up to a multiple of 4.
func paddedLen(n int) int {
	return (n + 4) &^ 3
}

// MessageSize returns the exact encoded size of a message.
func MessageSize(address string, args []Value) int {
	return paddedLen(len(address)) + paddedLen(1+len(args)) + 4*len(args)
}

// EncodeMessage returns the wire form of a single message.
func EncodeMessage(address string, args ...Value) []byte {
	return AppendMessage(make([]byte, 0, MessageSize(address, args)), address, args)
}

// AppendMessage appends the wire form of a message to dst.
func AppendMessage(dst []byte, address string, args []Value) []byte {
	dst = appendPadded(dst, address)

	start := len(dst)
	dst = append(dst, ',')
	for _, a := range args {
		dst = append(dst, a.kind.Tag())
	}
	dst = appendPadding(dst, len(dst)-start)

	for _, a := range args {
		switch a.kind {
		case KindFloat32:
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(a.f))
		default:
			dst = binary.BigEndian.AppendUint32(dst, uint32(a.i))
		}
	}
	return dst
}

// BundleSize returns the exact encoded size of a bundle holding elements.
func BundleSize(elements [][]byte) int {
	n := len(bundleTag) + 8
	for _, e := range elements {
		n += 4 + len(e)
	}
	return n
}

// EncodeBundle wraps already-encoded messages (or bundles) in a bundle
// time-tagged for immediate dispatch.
func EncodeBundle(elements ...[]byte) []byte {
	return AppendBundle(make([]byte, 0, BundleSize(elements)), elements)
}

// AppendBundle appends the wire form of a bundle to dst.
func AppendBundle(dst []byte, elements [][]byte) []byte {
	dst = append(dst, bundleTag...)
	dst = binary.BigEndian.AppendUint64(dst, TimeTagImmediately)
	for _, e := range elements {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(e)))
		dst = append(dst, e...)
	}
	return dst
}

func appendPadded(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return appendPadding(dst, len(s))
}

// appendPadding writes the terminating NUL of an n-byte string and pads to 4.
func appendPadding(dst []byte, n int) []byte {
	for i := n; i < paddedLen(n); i++ {
		dst = append(dst, 0)
	}
	return dst
}
