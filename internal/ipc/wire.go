package ipc

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrel-os/kcore/internal/constants"
)

// WireSize is the fixed byte length of a marshaled call: a 32-bit
// method, constants.CallInlineArgs 64-bit argument words, and one
// flags byte carrying the FlagForwarded/FlagNotification bits a peer
// needs to see on the wire (FlagAnswered is reply-path-only and is
// not transmitted). Grounded on the teacher's binary-packing approach
// to fixed-width records, reimplemented here for the call payload
// spec §4.6 defines rather than ported from the deleted source.
const WireSize = 4 + 8*constants.CallInlineArgs + 1

const wireTransmittedFlags = FlagForwarded | FlagNotification

// Marshal packs a call's method, arguments, and wire-relevant flags
// into a fixed-size byte slice, little-endian.
func Marshal(c *Call) []byte {
	buf := make([]byte, WireSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.Method)
	for i, arg := range c.Args {
		off := 4 + i*8
		binary.LittleEndian.PutUint64(buf[off:off+8], arg)
	}
	buf[WireSize-1] = byte(c.Flags & wireTransmittedFlags)
	return buf
}

// Unmarshal decodes a wire-format call payload produced by Marshal
// into a fresh Call with no sender phone or reply channel attached;
// the caller is responsible for routing it through a Phone/Answerbox.
func Unmarshal(data []byte) (*Call, error) {
	if len(data) != WireSize {
		return nil, fmt.Errorf("ipc: wire payload is %d bytes, want %d", len(data), WireSize)
	}
	c := &Call{Method: binary.LittleEndian.Uint32(data[0:4])}
	for i := range c.Args {
		off := 4 + i*8
		c.Args[i] = binary.LittleEndian.Uint64(data[off : off+8])
	}
	c.Flags = CallFlags(data[WireSize-1]) & wireTransmittedFlags
	return c, nil
}
