package protocol

// Frame markers and sizing for the bootloader wire packet:
//
//	[SOP][CMD/STATUS][LEN_L][LEN_H][DATA...][CHECKSUM_L][CHECKSUM_H][EOP]
const (
	// StartOfPacket is the frame start marker
	StartOfPacket = 0x01

	// EndOfPacket is the frame end marker
	EndOfPacket = 0x17

	// MinFrameSize is the size of a frame with no data payload:
	// SOP(1) + CMD/STATUS(1) + LEN(2) + CHECKSUM(2) + EOP(1)
	MinFrameSize = 7
)

// Command opcodes per the Cypress bootloader protocol.
const (
	// CmdVerifyChecksum verifies the entire application checksum
	CmdVerifyChecksum = 0x31

	// CmdGetFlashSize queries the valid flash row range for an array
	CmdGetFlashSize = 0x32

	// CmdGetAppStatus returns status of the specified application (dual-app only)
	CmdGetAppStatus = 0x33

	// CmdEraseRow erases a single flash row
	CmdEraseRow = 0x34

	// CmdSyncBootloader resets the bootloader packet parser to a clean state
	CmdSyncBootloader = 0x35

	// CmdSetActiveApp marks the specified application as active (dual-app only)
	CmdSetActiveApp = 0x36

	// CmdSendData buffers a data chunk for a following Program Row
	CmdSendData = 0x37

	// CmdEnterBootloader starts a bootload session, optionally keyed
	CmdEnterBootloader = 0x38

	// CmdProgramRow programs a single flash row
	CmdProgramRow = 0x39

	// CmdVerifyRow reads back the checksum of a programmed row
	CmdVerifyRow = 0x3A

	// CmdExitBootloader resets the device into the application
	CmdExitBootloader = 0x3B

	// CmdGetMetadata reports the 56-byte application metadata block
	CmdGetMetadata = 0x3C
)

// Device status codes carried in the second byte of a response frame.
const (
	StatusSuccess                 = 0x00
	StatusKeyError                = 0x01
	StatusVerificationFailed      = 0x02
	StatusIncorrectLength         = 0x03
	StatusInvalidData             = 0x04
	StatusInvalidCommand          = 0x05
	StatusUnexpectedDevice        = 0x06
	StatusUnsupportedVersion      = 0x07
	StatusInvalidChecksum         = 0x08
	StatusInvalidArray            = 0x09
	StatusInvalidFlashRow         = 0x0A
	StatusProtectedFlash          = 0x0B
	StatusInvalidApp              = 0x0C
	StatusTargetApplicationActive = 0x0D
	StatusCallbackResponseInvalid = 0x0E
	StatusUnknownError            = 0x0F
)

// ChecksumType selects the packet checksum algorithm for a session.
// It is declared in the firmware image header and must match the algorithm
// the resident bootloader was built with.
type ChecksumType byte

const (
	// SumChecksumType selects the 16-bit two's complement sum
	SumChecksumType ChecksumType = 0x00

	// CRC16ChecksumType selects the reflected CRC16 variant
	CRC16ChecksumType ChecksumType = 0x01
)

// String returns the name used in log output.
func (t ChecksumType) String() string {
	switch t {
	case SumChecksumType:
		return "sum"
	case CRC16ChecksumType:
		return "crc16"
	default:
		return "invalid"
	}
}

// Valid reports whether t is a defined checksum selector.
func (t ChecksumType) Valid() bool {
	return t == SumChecksumType || t == CRC16ChecksumType
}

// BootloaderKeySize is the length of the optional security key sent with
// Enter Bootloader.
const BootloaderKeySize = 6

// MetadataSize is the size of the application metadata block, both as
// returned by Get Metadata and as embedded in the image's metadata row.
const MetadataSize = 56
