package bootloader

import (
	"errors"
	"fmt"
)

// ErrNoInactiveApplication is returned when neither slot of a
// dual-application bootloader is inactive, leaving nothing safe to flash.
var ErrNoInactiveApplication = errors.New("failed to find inactive application to flash")

// ErrGlobalChecksum is returned when the device reports that the programmed
// application's checksum does not verify.
var ErrGlobalChecksum = errors.New("flash checksum does not verify")

// SiliconMismatchError reports that the device identity does not match the
// firmware image. Field names the mismatched value: "id" or "rev".
type SiliconMismatchError struct {
	Field  string
	Device uint32
	Local  uint32
}

func (e *SiliconMismatchError) Error() string {
	return fmt.Sprintf("silicon %s of device (0x%X) does not match firmware image (0x%X)",
		e.Field, e.Device, e.Local)
}

// RowOutOfRangeError reports an image row outside the device's flash bounds
// for its array.
type RowOutOfRangeError struct {
	ArrayID  byte
	RowNum   uint16
	FirstRow uint16
	LastRow  uint16
}

func (e *RowOutOfRangeError) Error() string {
	return fmt.Sprintf("row %d in array %d out of range %d-%d",
		e.RowNum, e.ArrayID, e.FirstRow, e.LastRow)
}

// RowVerificationError reports a row whose device-computed checksum did not
// match the image's row checksum after programming.
type RowVerificationError struct {
	ArrayID  byte
	RowNum   uint16
	Expected byte
	Actual   byte
}

func (e *RowVerificationError) Error() string {
	return fmt.Sprintf("checksum does not match in array %d row %d: expected 0x%02X, got 0x%02X",
		e.ArrayID, e.RowNum, e.Expected, e.Actual)
}

// StateError reports a host method called out of sequence.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}

// MetadataMismatch is one difference between the metadata on the device and
// the metadata embedded in the image. CheckMetadata returns mismatches as
// data rather than failing; the caller decides whether to abort, prompt, or
// force.
type MetadataMismatch interface {
	fmt.Stringer
	metadataMismatch()
}

// AppVersionMismatch reports a device application version newer than the
// image's, i.e. the upload would be a downgrade.
type AppVersionMismatch struct {
	Device uint16
	Local  uint16
}

func (m AppVersionMismatch) metadataMismatch() {}

func (m AppVersionMismatch) String() string {
	return fmt.Sprintf("device application version is v%d.%d, but local application version is v%d.%d",
		m.Device>>8, m.Device&0xFF, m.Local>>8, m.Local&0xFF)
}

// AppIDMismatch reports differing application IDs between device and image.
type AppIDMismatch struct {
	Device uint16
	Local  uint16
}

func (m AppIDMismatch) metadataMismatch() {}

func (m AppIDMismatch) String() string {
	return fmt.Sprintf("device application ID is %d, but local application ID is %d",
		m.Device, m.Local)
}
