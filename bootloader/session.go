package bootloader

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/StrainMeasurementDevices/cyflash/protocol"
	"github.com/StrainMeasurementDevices/cyflash/transport"
)

// Session pairs a transport with the packet codec and exposes one typed
// remote call per device command. It is stateless beyond the checksum
// algorithm bound at construction; commands are strictly sequential, as the
// protocol has no way to correlate out-of-order responses.
type Session struct {
	transport transport.Transport
	codec     *protocol.Codec
	log       logrus.FieldLogger
}

// NewSession binds a transport to the packet checksum algorithm declared by
// the firmware image.
func NewSession(t transport.Transport, checksum protocol.ChecksumType) (*Session, error) {
	codec, err := protocol.NewCodec(checksum)
	if err != nil {
		return nil, err
	}
	return &Session{
		transport: t,
		codec:     codec,
		log:       logrus.WithField("component", "bootloader-session"),
	}, nil
}

// roundTrip encodes cmd, sends it, and decodes the response payload.
func (s *Session) roundTrip(cmd protocol.Command) ([]byte, error) {
	if err := s.transport.Send(s.codec.Encode(cmd)); err != nil {
		return nil, err
	}
	raw, err := s.transport.Recv()
	if err != nil {
		return nil, err
	}
	return s.codec.DecodeResponse(raw)
}

// EnterBootloader starts the session. key is optional; when present it must
// be exactly protocol.BootloaderKeySize bytes.
func (s *Session) EnterBootloader(key []byte) (*protocol.DeviceInfo, error) {
	if len(key) != 0 && len(key) != protocol.BootloaderKeySize {
		return nil, fmt.Errorf("bootloader key must be %d bytes, got %d", protocol.BootloaderKeySize, len(key))
	}
	s.log.Debug("entering bootloader")
	payload, err := s.roundTrip(protocol.EnterBootloader{Key: key})
	if err != nil {
		return nil, err
	}
	return protocol.ParseDeviceInfo(payload)
}

// GetFlashSize queries the programmable row bounds of one flash array.
func (s *Session) GetFlashSize(arrayID byte) (*protocol.FlashBounds, error) {
	payload, err := s.roundTrip(protocol.GetFlashSize{ArrayID: arrayID})
	if err != nil {
		return nil, err
	}
	return protocol.ParseFlashBounds(payload)
}

// ApplicationStatus queries the valid/active flags of one application slot.
func (s *Session) ApplicationStatus(applicationID byte) (*protocol.ApplicationStatus, error) {
	payload, err := s.roundTrip(protocol.GetApplicationStatus{ApplicationID: applicationID})
	if err != nil {
		return nil, err
	}
	return protocol.ParseApplicationStatus(payload)
}

// VerifyChecksum asks the device whether the application checksum verifies.
func (s *Session) VerifyChecksum() (bool, error) {
	payload, err := s.roundTrip(protocol.VerifyChecksum{})
	if err != nil {
		return false, err
	}
	return protocol.ParseChecksumValid(payload)
}

// GetMetadata reads an application's metadata block in the PSoC3/PSoC4
// layout.
func (s *Session) GetMetadata(applicationID byte) (*protocol.Metadata, error) {
	payload, err := s.roundTrip(protocol.GetMetadata{ApplicationID: applicationID})
	if err != nil {
		return nil, err
	}
	return protocol.ParseMetadata(payload)
}

// GetPSoC5Metadata reads an application's metadata block in the PSoC5
// layout. The layout is caller-supplied configuration; the device does not
// announce which one it uses.
func (s *Session) GetPSoC5Metadata(applicationID byte) (*protocol.PSoC5Metadata, error) {
	payload, err := s.roundTrip(protocol.GetMetadata{ApplicationID: applicationID})
	if err != nil {
		return nil, err
	}
	return protocol.ParsePSoC5Metadata(payload)
}

// ProgramRow writes one flash row. Row data beyond chunkSize bytes is sent
// ahead with Send Data commands; the final chunk rides on the Program Row
// command that names the array and row.
func (s *Session) ProgramRow(arrayID byte, rowID uint16, data []byte, chunkSize int) error {
	if chunkSize <= 0 || chunkSize > len(data) {
		chunkSize = len(data)
	}

	for len(data) > chunkSize {
		if _, err := s.roundTrip(protocol.SendData{Data: data[:chunkSize]}); err != nil {
			return err
		}
		data = data[chunkSize:]
	}

	_, err := s.roundTrip(protocol.ProgramRow{ArrayID: arrayID, RowID: rowID, Data: data})
	return err
}

// EraseRow erases one flash row.
func (s *Session) EraseRow(arrayID byte, rowID uint16) error {
	_, err := s.roundTrip(protocol.EraseRow{ArrayID: arrayID, RowID: rowID})
	return err
}

// GetRowChecksum reads back the device-computed checksum of one flash row.
func (s *Session) GetRowChecksum(arrayID byte, rowID uint16) (byte, error) {
	payload, err := s.roundTrip(protocol.VerifyRow{ArrayID: arrayID, RowID: rowID})
	if err != nil {
		return 0, err
	}
	return protocol.ParseRowChecksum(payload)
}

// SetApplicationActive marks an application slot as active (dual-app only).
func (s *Session) SetApplicationActive(applicationID byte) error {
	_, err := s.roundTrip(protocol.SetActiveApplication{ApplicationID: applicationID})
	return err
}

// SyncBootloader resets the device's packet parser. Not part of the normal
// bootload sequence; useful when recovering a device that stopped answering
// mid-packet.
func (s *Session) SyncBootloader() error {
	_, err := s.roundTrip(protocol.SyncBootloader{})
	return err
}

// ExitBootloader resets the device into the application. Send only: the
// device is rebooting and will not answer, and no further session calls are
// valid afterwards.
func (s *Session) ExitBootloader() error {
	return s.transport.Send(s.codec.Encode(protocol.ExitBootloader{}))
}
