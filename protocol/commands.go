package protocol

import "encoding/binary"

// Command is a typed bootloader command. Opcode returns the command byte and
// Payload the packed argument bytes placed in the frame's data field.
type Command interface {
	Opcode() byte
	Payload() []byte
}

// EnterBootloader starts a bootload session. Key is the optional security
// key; it must be empty or exactly BootloaderKeySize bytes.
type EnterBootloader struct {
	Key []byte
}

func (c EnterBootloader) Opcode() byte { return CmdEnterBootloader }

func (c EnterBootloader) Payload() []byte { return c.Key }

// GetFlashSize queries the programmable row range of one flash array.
type GetFlashSize struct {
	ArrayID byte
}

func (c GetFlashSize) Opcode() byte { return CmdGetFlashSize }

func (c GetFlashSize) Payload() []byte { return []byte{c.ArrayID} }

// GetApplicationStatus queries the valid/active flags of one application
// slot on a dual-application bootloader.
type GetApplicationStatus struct {
	ApplicationID byte
}

func (c GetApplicationStatus) Opcode() byte { return CmdGetAppStatus }

func (c GetApplicationStatus) Payload() []byte { return []byte{c.ApplicationID} }

// EraseRow erases a single flash row.
type EraseRow struct {
	ArrayID byte
	RowID   uint16
}

func (c EraseRow) Opcode() byte { return CmdEraseRow }

func (c EraseRow) Payload() []byte { return packRowArgs(c.ArrayID, c.RowID) }

// SyncBootloader resets the device's packet parser to a clean state. Only
// needed when host and device have fallen out of sync.
type SyncBootloader struct{}

func (c SyncBootloader) Opcode() byte { return CmdSyncBootloader }

func (c SyncBootloader) Payload() []byte { return nil }

// SetActiveApplication marks an application slot as active (dual-app only).
type SetActiveApplication struct {
	ApplicationID byte
}

func (c SetActiveApplication) Opcode() byte { return CmdSetActiveApp }

func (c SetActiveApplication) Payload() []byte { return []byte{c.ApplicationID} }

// SendData transfers one chunk of row data to be buffered by the device
// ahead of a ProgramRow. The chunk bytes are the raw payload.
type SendData struct {
	Data []byte
}

func (c SendData) Opcode() byte { return CmdSendData }

func (c SendData) Payload() []byte { return c.Data }

// ProgramRow writes the final chunk of a row and commits the row to flash.
type ProgramRow struct {
	ArrayID byte
	RowID   uint16
	Data    []byte
}

func (c ProgramRow) Opcode() byte { return CmdProgramRow }

func (c ProgramRow) Payload() []byte {
	return append(packRowArgs(c.ArrayID, c.RowID), c.Data...)
}

// VerifyRow reads back the device-computed checksum of one flash row.
type VerifyRow struct {
	ArrayID byte
	RowID   uint16
}

func (c VerifyRow) Opcode() byte { return CmdVerifyRow }

func (c VerifyRow) Payload() []byte { return packRowArgs(c.ArrayID, c.RowID) }

// VerifyChecksum asks the device to validate the whole application checksum.
type VerifyChecksum struct{}

func (c VerifyChecksum) Opcode() byte { return CmdVerifyChecksum }

func (c VerifyChecksum) Payload() []byte { return nil }

// ExitBootloader resets the device into the application. The device sends no
// response.
type ExitBootloader struct{}

func (c ExitBootloader) Opcode() byte { return CmdExitBootloader }

func (c ExitBootloader) Payload() []byte { return nil }

// GetMetadata reads the 56-byte metadata block of an application slot. The
// response layout differs between chip families; the caller selects the
// matching parser (ParseMetadata or ParsePSoC5Metadata).
type GetMetadata struct {
	ApplicationID byte
}

func (c GetMetadata) Opcode() byte { return CmdGetMetadata }

func (c GetMetadata) Payload() []byte { return []byte{c.ApplicationID} }

// packRowArgs packs the common arrayID/rowID argument prefix.
func packRowArgs(arrayID byte, rowID uint16) []byte {
	buf := make([]byte, 3, 3+256)
	buf[0] = arrayID
	binary.LittleEndian.PutUint16(buf[1:3], rowID)
	return buf
}
