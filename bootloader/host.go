package bootloader

import (
	"errors"
	"fmt"

	"github.com/StrainMeasurementDevices/cyflash/cyacd"
	"github.com/StrainMeasurementDevices/cyflash/protocol"
	"github.com/StrainMeasurementDevices/cyflash/transport"
)

// State is the host's position in the bootload sequence.
type State int

const (
	StateIdle State = iota
	StateEntered
	StateRangesVerified
	StateMetadataChecked
	StateRowsWritten
	StateChecksumVerified
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEntered:
		return "entered"
	case StateRangesVerified:
		return "ranges-verified"
	case StateMetadataChecked:
		return "metadata-checked"
	case StateRowsWritten:
		return "rows-written"
	case StateChecksumVerified:
		return "checksum-verified"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Byte offsets of the metadata block within the image's metadata row.
const (
	metadataOffset      = 64
	psoc5MetadataOffset = 192
)

type rowRange struct {
	first uint16
	last  uint16
}

// Host drives the bootload sequence against one device. The caller advances
// it step by step - the host never auto-advances - in the order: enter,
// (application status on dual-app devices), verify row ranges, check
// metadata, write rows, verify checksum, (set active application), exit.
// Calling a step out of order returns a StateError.
//
// A Host serves a single run against a single device; everything is
// synchronous and single-threaded.
type Host struct {
	session *Session
	fw      *cyacd.Firmware
	cfg     hostConfig

	// rowRanges is filled once by VerifyRowRanges and read-only afterwards.
	rowRanges map[byte]rowRange
	state     State
}

// NewHost builds a session over the transport, bound to the image's checksum
// algorithm, and a host around it.
func NewHost(t transport.Transport, fw *cyacd.Firmware, opts ...Option) (*Host, error) {
	session, err := NewSession(t, fw.ChecksumType)
	if err != nil {
		return nil, err
	}

	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Host{
		session:   session,
		fw:        fw,
		cfg:       cfg,
		rowRanges: make(map[byte]rowRange),
		state:     StateIdle,
	}, nil
}

// State returns the host's current position in the sequence.
func (h *Host) State() State {
	return h.state
}

// Session exposes the underlying session for operations outside the bootload
// sequence, such as erasing individual rows or re-synchronizing a wedged
// device.
func (h *Host) Session() *Session {
	return h.session
}

func (h *Host) require(op string, allowed ...State) error {
	for _, s := range allowed {
		if h.state == s {
			return nil
		}
	}
	return &StateError{Op: op, State: h.state}
}

// EnterBootloader starts the session and checks that the device's silicon
// identity matches the firmware image.
func (h *Host) EnterBootloader() error {
	if err := h.require("enter bootloader", StateIdle); err != nil {
		return err
	}

	h.cfg.log.Info("initialising bootloader")
	info, err := h.session.EnterBootloader(h.cfg.key)
	if err != nil {
		return err
	}
	h.cfg.log.Infof("silicon ID 0x%08X, revision %d, bootloader version 0x%06X",
		info.SiliconID, info.SiliconRev, info.BootloaderVersion)

	if info.SiliconID != h.fw.SiliconID {
		return &SiliconMismatchError{Field: "id", Device: info.SiliconID, Local: h.fw.SiliconID}
	}
	if info.SiliconRev != h.fw.SiliconRev {
		return &SiliconMismatchError{Field: "rev", Device: uint32(info.SiliconRev), Local: uint32(h.fw.SiliconRev)}
	}

	h.state = StateEntered
	return nil
}

// GetApplicationInactive scans both slots of a dual-application bootloader
// and returns the one safe to flash. Slots are scanned 0 then 1 and the last
// inactive slot wins, so slot 1 is preferred when both are inactive.
func (h *Host) GetApplicationInactive() (byte, error) {
	if err := h.require("query application status", StateEntered); err != nil {
		return 0, err
	}

	toFlash := -1
	for app := byte(0); app <= 1; app++ {
		status, err := h.session.ApplicationStatus(app)
		if err != nil {
			return 0, err
		}
		h.cfg.log.Debugf("app %d: valid %d, active %d", app, status.Valid, status.Active)
		if status.Active == 0 {
			toFlash = int(app)
		}
	}

	if toFlash < 0 {
		return 0, ErrNoInactiveApplication
	}
	h.cfg.log.Debugf("will flash app %d", toFlash)
	return byte(toFlash), nil
}

// VerifyRowRanges queries the device's flash bounds for every array in the
// image, records them, and fails if any image row falls outside its array's
// bounds.
func (h *Host) VerifyRowRanges() error {
	if err := h.require("verify row ranges", StateEntered); err != nil {
		return err
	}

	for _, array := range h.fw.Arrays {
		bounds, err := h.session.GetFlashSize(array.ID)
		if err != nil {
			return err
		}
		h.cfg.log.Debugf("array %d: first row %d, last row %d", array.ID, bounds.FirstRow, bounds.LastRow)
		h.rowRanges[array.ID] = rowRange{first: bounds.FirstRow, last: bounds.LastRow}

		for _, row := range array.Rows {
			if row.RowNum < bounds.FirstRow || row.RowNum > bounds.LastRow {
				return &RowOutOfRangeError{
					ArrayID:  array.ID,
					RowNum:   row.RowNum,
					FirstRow: bounds.FirstRow,
					LastRow:  bounds.LastRow,
				}
			}
		}
	}

	h.state = StateRangesVerified
	return nil
}

// CheckMetadata compares the metadata on the device against the metadata
// embedded in the image and returns the differences as data; the caller
// applies policy. ignoreVersion and ignoreID suppress the corresponding
// check entirely.
//
// A device that cannot produce metadata (no valid application yet, or a
// bootloader without the command) is not an error: the result is simply no
// mismatches. Framing errors still propagate.
func (h *Host) CheckMetadata(ignoreVersion, ignoreID bool) ([]MetadataMismatch, error) {
	if err := h.require("check metadata", StateRangesVerified); err != nil {
		return nil, err
	}

	deviceVersion, deviceID, err := h.readDeviceMetadata()
	if err != nil {
		var de *protocol.DeviceError
		var te *transport.TimeoutError
		switch {
		case protocol.IsStatus(err, protocol.StatusInvalidApp):
			h.cfg.log.Warn("no valid application on device")
		case errors.As(err, &de), errors.As(err, &te):
			h.cfg.log.Warnf("cannot read metadata from device: %v", err)
		default:
			return nil, err
		}
		h.state = StateMetadataChecked
		return nil, nil
	}
	h.cfg.log.Debugf("device application ID %d, version %d", deviceID, deviceVersion)

	localVersion, localID, err := h.localMetadata()
	if err != nil {
		return nil, err
	}

	var mismatches []MetadataMismatch
	if !ignoreVersion && deviceVersion > localVersion {
		mismatches = append(mismatches, AppVersionMismatch{Device: deviceVersion, Local: localVersion})
	}
	if !ignoreID && deviceID != localID {
		mismatches = append(mismatches, AppIDMismatch{Device: deviceID, Local: localID})
	}

	h.state = StateMetadataChecked
	return mismatches, nil
}

func (h *Host) readDeviceMetadata() (version, id uint16, err error) {
	if h.cfg.psoc5 {
		md, err := h.session.GetPSoC5Metadata(0)
		if err != nil {
			return 0, 0, err
		}
		return md.AppVersion, md.AppID, nil
	}
	md, err := h.session.GetMetadata(0)
	if err != nil {
		return 0, 0, err
	}
	return md.AppVersion, md.AppID, nil
}

// localMetadata decodes the metadata block embedded in the image's metadata
// row, at the fixed offset of the configured chip family's layout. The
// metadata row is the device-reported last row of the highest array; when the
// image carries no data for it, the image's own highest row stands in.
func (h *Host) localMetadata() (version, id uint16, err error) {
	arrayID := h.fw.MaxArrayID()
	row := h.fw.Array(arrayID).Row(h.rowRanges[arrayID].last)
	if row == nil {
		row = h.fw.MetadataRow()
	}

	offset := metadataOffset
	if h.cfg.psoc5 {
		offset = psoc5MetadataOffset
	}
	if len(row.Data) < offset+protocol.MetadataSize {
		return 0, 0, fmt.Errorf("metadata row %d in array %d is %d bytes, need %d",
			row.RowNum, row.ArrayID, len(row.Data), offset+protocol.MetadataSize)
	}
	block := row.Data[offset : offset+protocol.MetadataSize]

	if h.cfg.psoc5 {
		md, err := protocol.ParsePSoC5Metadata(block)
		if err != nil {
			return 0, 0, err
		}
		return md.AppVersion, md.AppID, nil
	}
	md, err := protocol.ParseMetadata(block)
	if err != nil {
		return 0, 0, err
	}
	return md.AppVersion, md.AppID, nil
}

// WriteRows programs every row in the image, arrays and rows both in file
// order, verifying each row's checksum right after it is programmed. The
// first verification failure aborts the upload with the remaining rows
// unprogrammed.
func (h *Host) WriteRows() error {
	if err := h.require("write rows", StateRangesVerified, StateMetadataChecked); err != nil {
		return err
	}

	total := h.fw.TotalRows()
	written := 0
	for _, array := range h.fw.Arrays {
		for _, row := range array.Rows {
			if err := h.session.ProgramRow(row.ArrayID, row.RowNum, row.Data, h.cfg.chunkSize); err != nil {
				return fmt.Errorf("program row %d in array %d: %w", row.RowNum, row.ArrayID, err)
			}

			actual, err := h.session.GetRowChecksum(row.ArrayID, row.RowNum)
			if err != nil {
				return fmt.Errorf("verify row %d in array %d: %w", row.RowNum, row.ArrayID, err)
			}
			if actual != row.Checksum {
				return &RowVerificationError{
					ArrayID:  row.ArrayID,
					RowNum:   row.RowNum,
					Expected: row.Checksum,
					Actual:   actual,
				}
			}

			written++
			h.cfg.progress.RowProgress("Uploading data", written, total)
		}
		h.cfg.progress.ArrayCompleted()
	}

	h.state = StateRowsWritten
	return nil
}

// VerifyChecksum asks the device to validate the application checksum after
// all rows are written.
func (h *Host) VerifyChecksum() error {
	if err := h.require("verify checksum", StateRowsWritten); err != nil {
		return err
	}

	ok, err := h.session.VerifyChecksum()
	if err != nil {
		return err
	}
	if !ok {
		return ErrGlobalChecksum
	}

	h.cfg.log.Info("device checksum verifies OK")
	h.state = StateChecksumVerified
	return nil
}

// SetApplicationActive marks the freshly flashed slot active (dual-app
// only).
func (h *Host) SetApplicationActive(applicationID byte) error {
	if err := h.require("set application active", StateChecksumVerified); err != nil {
		return err
	}

	h.cfg.log.Infof("setting application %d as active", applicationID)
	return h.session.SetApplicationActive(applicationID)
}

// ExitBootloader reboots the device into the application. Fire and forget;
// no further host calls are valid afterwards.
func (h *Host) ExitBootloader() error {
	if err := h.require("exit bootloader",
		StateEntered, StateRangesVerified, StateMetadataChecked, StateRowsWritten, StateChecksumVerified); err != nil {
		return err
	}

	h.cfg.log.Info("rebooting device")
	if err := h.session.ExitBootloader(); err != nil {
		return err
	}

	h.state = StateExited
	return nil
}
