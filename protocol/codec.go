package protocol

import (
	"encoding/binary"
	"fmt"
)

// Codec frames commands and unframes responses using the packet checksum
// algorithm selected by the firmware image. The same instance must be used
// for every packet of a session; the device rejects frames checksummed with
// the wrong algorithm.
type Codec struct {
	checksum ChecksumFunc
}

// NewCodec returns a Codec for the given checksum selector.
func NewCodec(t ChecksumType) (*Codec, error) {
	f := ChecksumFuncFor(t)
	if f == nil {
		return nil, fmt.Errorf("invalid checksum type 0x%02X", byte(t))
	}
	return &Codec{checksum: f}, nil
}

// Encode frames a command:
//
//	[SOP][OPCODE][LEN_L][LEN_H][PAYLOAD...][CHECKSUM_L][CHECKSUM_H][EOP]
//
// The checksum covers SOP through the end of the payload, inclusive.
func (c *Codec) Encode(cmd Command) []byte {
	payload := cmd.Payload()
	frame := make([]byte, 0, MinFrameSize+len(payload))

	frame = append(frame, StartOfPacket, cmd.Opcode())
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = binary.LittleEndian.AppendUint16(frame, c.checksum(frame))
	frame = append(frame, EndOfPacket)

	return frame
}

// DecodeResponse validates a raw response frame and returns its data payload.
//
// The frame is checked for the SOP marker, a length field consistent with the
// buffer, a matching checksum, and the EOP marker. A non-zero status byte is
// mapped to a DeviceError; framing violations return an InvalidPacketError.
func (c *Codec) DecodeResponse(frame []byte) ([]byte, error) {
	if len(frame) < MinFrameSize {
		return nil, invalidPacketf("frame too short: %d bytes, minimum is %d", len(frame), MinFrameSize)
	}
	if frame[0] != StartOfPacket {
		return nil, invalidPacketf("expected start of packet 0x%02X, found 0x%02X", StartOfPacket, frame[0])
	}

	status := frame[1]
	length := binary.LittleEndian.Uint16(frame[2:4])
	if int(length) != len(frame)-MinFrameSize {
		return nil, invalidPacketf("expected data length %d, actual %d", length, len(frame)-MinFrameSize)
	}

	if end := frame[len(frame)-1]; end != EndOfPacket {
		return nil, invalidPacketf("invalid end of packet 0x%02X, expected 0x%02X", end, EndOfPacket)
	}
	declared := binary.LittleEndian.Uint16(frame[len(frame)-3 : len(frame)-1])
	calculated := c.checksum(frame[:4+length])
	if declared != calculated {
		return nil, invalidPacketf("checksum 0x%04X, expected 0x%04X", declared, calculated)
	}

	if status != StatusSuccess {
		return nil, &DeviceError{Status: status}
	}

	return frame[4 : 4+length], nil
}
