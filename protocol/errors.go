package protocol

import (
	"errors"
	"fmt"
)

// InvalidPacketError reports a malformed frame: bad SOP/EOP marker, a length
// field that disagrees with the buffer, or a checksum mismatch. Framing
// errors are always fatal to the operation in progress and never retried.
type InvalidPacketError struct {
	Reason string
}

func (e *InvalidPacketError) Error() string {
	return "invalid packet: " + e.Reason
}

func invalidPacketf(format string, args ...interface{}) error {
	return &InvalidPacketError{Reason: fmt.Sprintf(format, args...)}
}

// DeviceError is a non-zero status code returned by the bootloader. Status
// holds the raw code; codes 0x01-0x0E map to the fixed protocol taxonomy,
// everything else reports as an unknown status.
type DeviceError struct {
	Status byte
}

var statusMessages = map[byte]string{
	StatusKeyError:                "the provided security key was incorrect",
	StatusVerificationFailed:      "the flash verification failed",
	StatusIncorrectLength:         "the amount of data available is outside the expected range",
	StatusInvalidData:             "the data is not of the proper form",
	StatusInvalidCommand:          "command unsupported on target device",
	StatusUnexpectedDevice:        "unexpected device",
	StatusUnsupportedVersion:      "unsupported bootloader version",
	StatusInvalidChecksum:         "invalid packet checksum",
	StatusInvalidArray:            "invalid flash array ID",
	StatusInvalidFlashRow:         "invalid flash row number",
	StatusProtectedFlash:          "flash region is protected",
	StatusInvalidApp:              "application is not valid",
	StatusTargetApplicationActive: "the application is currently marked as active or golden image",
	StatusCallbackResponseInvalid: "callback response invalid",
}

func (e *DeviceError) Error() string {
	if msg, ok := statusMessages[e.Status]; ok {
		return fmt.Sprintf("bootloader error: %s (status 0x%02X)", msg, e.Status)
	}
	return fmt.Sprintf("bootloader error: unknown status 0x%02X", e.Status)
}

// IsStatus reports whether err is, or wraps, a DeviceError carrying the
// given status.
func IsStatus(err error, status byte) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Status == status
}
