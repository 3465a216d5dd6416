package protocol

// ChecksumFunc computes the 16-bit packet checksum over the frame bytes from
// SOP through the end of the data payload, inclusive.
type ChecksumFunc func(data []byte) uint16

// ChecksumFuncFor returns the packet checksum function selected by the
// firmware image's checksum type, or nil for an invalid selector.
func ChecksumFuncFor(t ChecksumType) ChecksumFunc {
	switch t {
	case SumChecksumType:
		return SumChecksum
	case CRC16ChecksumType:
		return CRC16Checksum
	default:
		return nil
	}
}

// SumChecksum computes the 16-bit two's complement sum of data:
// (1 + ^sum(data)) mod 65536.
func SumChecksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return 1 + ^sum
}

// RowChecksum computes the 8-bit two's complement sum used for per-row
// self-checksums, both as stored in the firmware file and as reported by the
// device's Verify Row command.
func RowChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return 1 + ^sum
}

// CRC16Checksum computes the reflected CRC16 variant the bootloader firmware
// expects: polynomial 0x8408, seed 0xFFFF, both the input bytes and the shift
// register processed least-significant bit first. After all bytes, the byte
// halves are swapped and the result complemented.
//
// The bit order and post-processing must not be changed; the device computes
// the checksum the same way.
func CRC16Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			if (crc^uint16(b))&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
			b >>= 1
		}
	}
	crc = crc<<8 | crc>>8
	return ^crc
}
