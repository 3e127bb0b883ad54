// Package wire defines the binary frame pushed to stream clients. Every
// frame carries the full slot vector of one item: a 2-byte little-endian
// item id followed by one 2-byte little-endian count per slot, ascending.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed prefix length (the item id).
const HeaderSize = 2

// FrameSize returns the encoded length of a frame for the given slot count.
func FrameSize(slots int) int {
	return HeaderSize + 2*slots
}

// Encode builds the frame for one item's snapshot. counts must already be
// dense and ordered by slot index ascending.
func Encode(item uint16, counts []uint16) []byte {
	buf := make([]byte, FrameSize(len(counts)))
	binary.LittleEndian.PutUint16(buf[0:], item)
	for i, c := range counts {
		binary.LittleEndian.PutUint16(buf[HeaderSize+2*i:], c)
	}
	return buf
}

// Decode parses a frame back into its item id and slot vector.
func Decode(frame []byte) (item uint16, counts []uint16, err error) {
	if len(frame) < HeaderSize {
		return 0, nil, fmt.Errorf("wire: frame too short: %d bytes", len(frame))
	}
	if (len(frame)-HeaderSize)%2 != 0 {
		return 0, nil, fmt.Errorf("wire: odd frame length: %d bytes", len(frame))
	}
	item = binary.LittleEndian.Uint16(frame[0:])
	counts = make([]uint16, (len(frame)-HeaderSize)/2)
	for i := range counts {
		counts[i] = binary.LittleEndian.Uint16(frame[HeaderSize+2*i:])
	}
	return item, counts, nil
}
