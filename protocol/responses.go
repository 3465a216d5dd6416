package protocol

import "encoding/binary"

// Response payload sizes.
const (
	deviceInfoSize  = 8
	flashBoundsSize = 4
	appStatusSize   = 2
)

// DeviceInfo is the Enter Bootloader response: the device identity the host
// checks against the firmware image before programming anything.
type DeviceInfo struct {
	SiliconID         uint32
	SiliconRev        byte
	BootloaderVersion uint32
}

// ParseDeviceInfo unpacks an Enter Bootloader response payload:
//
//	[SILICON_ID(4 LE)][SILICON_REV(1)][BL_VERSION(2 LE)][BL_VERSION_HI(1)]
func ParseDeviceInfo(data []byte) (*DeviceInfo, error) {
	if len(data) != deviceInfoSize {
		return nil, invalidPacketf("enter bootloader response is %d bytes, expected %d", len(data), deviceInfoSize)
	}
	return &DeviceInfo{
		SiliconID:         binary.LittleEndian.Uint32(data[0:4]),
		SiliconRev:        data[4],
		BootloaderVersion: uint32(binary.LittleEndian.Uint16(data[5:7])) | uint32(data[7])<<16,
	}, nil
}

// FlashBounds is the Get Flash Size response: the inclusive range of
// programmable rows in one array.
type FlashBounds struct {
	FirstRow uint16
	LastRow  uint16
}

// ParseFlashBounds unpacks a Get Flash Size response payload:
//
//	[FIRST_ROW(2 LE)][LAST_ROW(2 LE)]
func ParseFlashBounds(data []byte) (*FlashBounds, error) {
	if len(data) != flashBoundsSize {
		return nil, invalidPacketf("get flash size response is %d bytes, expected %d", len(data), flashBoundsSize)
	}
	return &FlashBounds{
		FirstRow: binary.LittleEndian.Uint16(data[0:2]),
		LastRow:  binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// ApplicationStatus is the Get Application Status response for one slot of a
// dual-application bootloader. The flags are kept as raw bytes; the device
// reports 0/1 and the host tests Active == 0 to find the updatable slot.
type ApplicationStatus struct {
	Valid  byte
	Active byte
}

// ParseApplicationStatus unpacks a Get Application Status response payload:
//
//	[VALID(1)][ACTIVE(1)]
func ParseApplicationStatus(data []byte) (*ApplicationStatus, error) {
	if len(data) != appStatusSize {
		return nil, invalidPacketf("application status response is %d bytes, expected %d", len(data), appStatusSize)
	}
	return &ApplicationStatus{Valid: data[0], Active: data[1]}, nil
}

// ParseRowChecksum unpacks a Verify Row response payload: the single
// device-computed row checksum byte.
func ParseRowChecksum(data []byte) (byte, error) {
	if len(data) != 1 {
		return 0, invalidPacketf("verify row response is %d bytes, expected 1", len(data))
	}
	return data[0], nil
}

// ParseChecksumValid unpacks a Verify Checksum response payload: a single
// flag byte, non-zero when the application checksum verifies.
func ParseChecksumValid(data []byte) (bool, error) {
	if len(data) != 1 {
		return false, invalidPacketf("verify checksum response is %d bytes, expected 1", len(data))
	}
	return data[0] != 0, nil
}

// Metadata is the 56-byte application metadata block in the PSoC3/PSoC4
// layout. The same decoding is applied to the metadata block embedded in the
// image's metadata row, so device and local metadata compare field by field.
type Metadata struct {
	Checksum          byte
	BootloadableAddr  uint32
	BootloaderLastRow uint32
	BootloadableLen   uint32
	Active            byte
	Verified          byte
	AppVersion        uint16
	AppID             uint16
	CustomID          uint16
}

// ParseMetadata unpacks a metadata block in the PSoC3/PSoC4 layout.
//
// Byte offsets: checksum 0, bootloadable address 1-4, bootloader last row
// 5-8, bootloadable length 9-12, pad 13-19, active 20, verified 21,
// application version 22-23, application ID 24-25, custom ID 26-27,
// pad 28-55. Multi-byte fields are little-endian.
func ParseMetadata(data []byte) (*Metadata, error) {
	if len(data) != MetadataSize {
		return nil, invalidPacketf("metadata block is %d bytes, expected %d", len(data), MetadataSize)
	}
	return &Metadata{
		Checksum:          data[0],
		BootloadableAddr:  binary.LittleEndian.Uint32(data[1:5]),
		BootloaderLastRow: binary.LittleEndian.Uint32(data[5:9]),
		BootloadableLen:   binary.LittleEndian.Uint32(data[9:13]),
		Active:            data[20],
		Verified:          data[21],
		AppVersion:        binary.LittleEndian.Uint16(data[22:24]),
		AppID:             binary.LittleEndian.Uint16(data[24:26]),
		CustomID:          binary.LittleEndian.Uint16(data[26:28]),
	}, nil
}

// PSoC5Metadata is the 56-byte application metadata block in the PSoC5
// layout, which packs the same information at different offsets and widths.
type PSoC5Metadata struct {
	Checksum          byte
	BootloadableAddr  uint32
	BootloaderLastRow uint16
	BootloadableLen   uint32
	Active            byte
	Verified          byte
	BootloaderVersion uint16
	AppID             uint16
	AppVersion        uint16
	CustomID          uint32
}

// ParsePSoC5Metadata unpacks a metadata block in the PSoC5 layout.
//
// Byte offsets: checksum 0, bootloadable address 1-4, bootloader last row
// 5-6, pad 7-8, bootloadable length 9-12, pad 13-15, active 16, verified 17,
// bootloader version 18-19, application ID 20-21, application version 22-23,
// custom ID 24-27, pad 28-55. Multi-byte fields are little-endian.
func ParsePSoC5Metadata(data []byte) (*PSoC5Metadata, error) {
	if len(data) != MetadataSize {
		return nil, invalidPacketf("metadata block is %d bytes, expected %d", len(data), MetadataSize)
	}
	return &PSoC5Metadata{
		Checksum:          data[0],
		BootloadableAddr:  binary.LittleEndian.Uint32(data[1:5]),
		BootloaderLastRow: binary.LittleEndian.Uint16(data[5:7]),
		BootloadableLen:   binary.LittleEndian.Uint32(data[9:13]),
		Active:            data[16],
		Verified:          data[17],
		BootloaderVersion: binary.LittleEndian.Uint16(data[18:20]),
		AppID:             binary.LittleEndian.Uint16(data[20:22]),
		AppVersion:        binary.LittleEndian.Uint16(data[22:24]),
		CustomID:          binary.LittleEndian.Uint32(data[24:28]),
	}, nil
}
