package bootloader

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/StrainMeasurementDevices/cyflash/cyacd"
	"github.com/StrainMeasurementDevices/cyflash/protocol"
)

// rowLine renders one image row with a correct self-checksum.
func rowLine(arrayID byte, rowNum uint16, data []byte) string {
	return fmt.Sprintf(":%02X%04X%04X%s%02X",
		arrayID, rowNum, len(data),
		strings.ToUpper(hex.EncodeToString(data)),
		protocol.RowChecksum(data))
}

// makeFirmware builds a parsed image for silicon 0x1E9602AA rev 0 with the
// sum packet checksum.
func makeFirmware(t *testing.T, rows ...string) *cyacd.Firmware {
	t.Helper()
	image := "1E9602AA0000\n" + strings.Join(rows, "\n")
	fw, err := cyacd.Read(strings.NewReader(image))
	if err != nil {
		t.Fatalf("building test image: %v", err)
	}
	return fw
}

// metadataRowData builds a row payload long enough to carry the PSoC3/PSoC4
// metadata block at its fixed offset, with the given version and id.
func metadataRowData(version, id uint16) []byte {
	data := make([]byte, 128)
	binary.LittleEndian.PutUint16(data[64+22:], version)
	binary.LittleEndian.PutUint16(data[64+24:], id)
	return data
}

// deviceMetadata builds a 56-byte metadata response in the PSoC3/PSoC4
// layout.
func deviceMetadata(version, id uint16) []byte {
	block := make([]byte, protocol.MetadataSize)
	binary.LittleEndian.PutUint16(block[22:24], version)
	binary.LittleEndian.PutUint16(block[24:26], id)
	return block
}

func TestHostFullSequence(t *testing.T) {
	fw := makeFirmware(t,
		rowLine(0, 10, []byte{0x01, 0x02}),
		rowLine(0, 11, []byte{0x03, 0x04}),
	)

	tr := &mockTransport{}
	tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)         // enter
	tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0xFF, 0x01}) // flash size
	tr.addResponse(protocol.StatusInvalidCommand, nil)                // metadata unsupported
	tr.addResponse(protocol.StatusSuccess, nil)                       // program row 10
	tr.addResponse(protocol.StatusSuccess, []byte{0xFD})              // verify row 10
	tr.addResponse(protocol.StatusSuccess, nil)                       // program row 11
	tr.addResponse(protocol.StatusSuccess, []byte{0xF9})              // verify row 11
	tr.addResponse(protocol.StatusSuccess, []byte{0x01})              // verify checksum

	var rows []int
	var breaks int
	host, err := NewHost(tr, fw, WithProgress(sinkFunc{
		row:   func(message string, current, total int) { rows = append(rows, current) },
		array: func() { breaks++ },
	}))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}

	steps := []struct {
		name string
		call func() error
		want State
	}{
		{"enter", host.EnterBootloader, StateEntered},
		{"ranges", host.VerifyRowRanges, StateRangesVerified},
		{"metadata", func() error { _, err := host.CheckMetadata(false, false); return err }, StateMetadataChecked},
		{"write", host.WriteRows, StateRowsWritten},
		{"checksum", host.VerifyChecksum, StateChecksumVerified},
		{"exit", host.ExitBootloader, StateExited},
	}
	for _, step := range steps {
		if err := step.call(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if host.State() != step.want {
			t.Fatalf("%s: state = %v, want %v", step.name, host.State(), step.want)
		}
	}

	if len(rows) != 2 || rows[0] != 1 || rows[1] != 2 {
		t.Errorf("row progress = %v, want [1 2]", rows)
	}
	if breaks != 1 {
		t.Errorf("array breaks = %d, want 1", breaks)
	}

	ops := tr.sentOpcodes()
	wantOps := []byte{
		protocol.CmdEnterBootloader,
		protocol.CmdGetFlashSize,
		protocol.CmdGetMetadata,
		protocol.CmdProgramRow,
		protocol.CmdVerifyRow,
		protocol.CmdProgramRow,
		protocol.CmdVerifyRow,
		protocol.CmdVerifyChecksum,
		protocol.CmdExitBootloader,
	}
	if len(ops) != len(wantOps) {
		t.Fatalf("sent %d commands (% X), want %d", len(ops), ops, len(wantOps))
	}
	for i := range ops {
		if ops[i] != wantOps[i] {
			t.Errorf("command %d = 0x%02X, want 0x%02X", i, ops[i], wantOps[i])
		}
	}
}

// sinkFunc adapts two closures to the ProgressSink interface.
type sinkFunc struct {
	row   func(message string, current, total int)
	array func()
}

func (s sinkFunc) RowProgress(message string, current, total int) { s.row(message, current, total) }

func (s sinkFunc) ArrayCompleted() { s.array() }

func TestHostSiliconMismatch(t *testing.T) {
	fw := makeFirmware(t, rowLine(0, 0, []byte{0x01}))

	tr := &mockTransport{}
	// Device reports a different silicon id than the image targets.
	tr.addResponse(protocol.StatusSuccess, []byte{0x78, 0x56, 0x34, 0x12, 0x00, 0x01, 0x1E, 0x00})

	host, _ := NewHost(tr, fw)
	err := host.EnterBootloader()

	var sme *SiliconMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("error = %v (%T), want *SiliconMismatchError", err, err)
	}
	if sme.Field != "id" {
		t.Errorf("Field = %q, want \"id\"", sme.Field)
	}
	if host.State() != StateIdle {
		t.Errorf("state = %v, want idle", host.State())
	}
}

func TestHostSiliconRevMismatch(t *testing.T) {
	fw := makeFirmware(t, rowLine(0, 0, []byte{0x01}))

	tr := &mockTransport{}
	tr.addResponse(protocol.StatusSuccess, []byte{0xAA, 0x02, 0x96, 0x1E, 0x07, 0x01, 0x1E, 0x00})

	host, _ := NewHost(tr, fw)
	err := host.EnterBootloader()

	var sme *SiliconMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("error = %v (%T), want *SiliconMismatchError", err, err)
	}
	if sme.Field != "rev" {
		t.Errorf("Field = %q, want \"rev\"", sme.Field)
	}
}

func TestHostVerifyRowRanges(t *testing.T) {
	t.Run("row out of range", func(t *testing.T) {
		fw := makeFirmware(t, rowLine(0, 500, []byte{0x01}))

		tr := &mockTransport{}
		tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
		// Device last row 400: image row 500 falls outside.
		tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0x90, 0x01})

		host, _ := NewHost(tr, fw)
		if err := host.EnterBootloader(); err != nil {
			t.Fatalf("enter: %v", err)
		}

		err := host.VerifyRowRanges()
		var roor *RowOutOfRangeError
		if !errors.As(err, &roor) {
			t.Fatalf("error = %v (%T), want *RowOutOfRangeError", err, err)
		}
		if roor.RowNum != 500 || roor.LastRow != 400 {
			t.Errorf("range error = %+v, want row 500 against last row 400", *roor)
		}
		if host.State() != StateEntered {
			t.Errorf("state = %v, want entered", host.State())
		}
	})

	t.Run("all rows in bounds", func(t *testing.T) {
		fw := makeFirmware(t, rowLine(0, 400, []byte{0x01}))

		tr := &mockTransport{}
		tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
		tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0x90, 0x01})

		host, _ := NewHost(tr, fw)
		if err := host.EnterBootloader(); err != nil {
			t.Fatalf("enter: %v", err)
		}
		if err := host.VerifyRowRanges(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if host.State() != StateRangesVerified {
			t.Errorf("state = %v, want ranges-verified", host.State())
		}
	})
}

// enterAndVerify drives a fresh host to RangesVerified over a transport
// scripted with the enter and flash size responses.
func enterAndVerify(t *testing.T, host *Host) {
	t.Helper()
	if err := host.EnterBootloader(); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := host.VerifyRowRanges(); err != nil {
		t.Fatalf("verify ranges: %v", err)
	}
}

func TestHostCheckMetadata(t *testing.T) {
	newFixture := func(deviceVersion, deviceID uint16) (*mockTransport, *Host) {
		fw := makeFirmware(t, rowLine(0, 5, metadataRowData(256, 7)))
		tr := &mockTransport{}
		tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
		tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0xFF, 0x01})
		tr.addResponse(protocol.StatusSuccess, deviceMetadata(deviceVersion, deviceID))
		host, err := NewHost(tr, fw)
		if err != nil {
			t.Fatalf("NewHost: %v", err)
		}
		return tr, host
	}

	t.Run("newer device version is reported", func(t *testing.T) {
		_, host := newFixture(300, 7)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(false, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 1 {
			t.Fatalf("mismatches = %d, want 1", len(mismatches))
		}
		avm, ok := mismatches[0].(AppVersionMismatch)
		if !ok {
			t.Fatalf("mismatch type = %T, want AppVersionMismatch", mismatches[0])
		}
		if avm.Device != 300 || avm.Local != 256 {
			t.Errorf("mismatch = %+v, want device 300, local 256", avm)
		}
		if host.State() != StateMetadataChecked {
			t.Errorf("state = %v, want metadata-checked", host.State())
		}
	})

	t.Run("ignore version suppresses the record", func(t *testing.T) {
		_, host := newFixture(300, 7)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(true, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 0 {
			t.Errorf("mismatches = %v, want none", mismatches)
		}
	})

	t.Run("older device version passes", func(t *testing.T) {
		_, host := newFixture(100, 7)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(false, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 0 {
			t.Errorf("mismatches = %v, want none", mismatches)
		}
	})

	t.Run("different app id is reported", func(t *testing.T) {
		_, host := newFixture(256, 9)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(false, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 1 {
			t.Fatalf("mismatches = %d, want 1", len(mismatches))
		}
		if _, ok := mismatches[0].(AppIDMismatch); !ok {
			t.Errorf("mismatch type = %T, want AppIDMismatch", mismatches[0])
		}
	})

	t.Run("device without valid app passes", func(t *testing.T) {
		fw := makeFirmware(t, rowLine(0, 5, metadataRowData(256, 7)))
		tr := &mockTransport{}
		tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
		tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0xFF, 0x01})
		tr.addResponse(protocol.StatusInvalidApp, nil)

		host, _ := NewHost(tr, fw)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(false, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 0 {
			t.Errorf("mismatches = %v, want none", mismatches)
		}
		if host.State() != StateMetadataChecked {
			t.Errorf("state = %v, want metadata-checked", host.State())
		}
	})
}

// psoc5MetadataRowData builds a row payload long enough to carry the PSoC5
// metadata block at its fixed offset, with the given version and id.
func psoc5MetadataRowData(version, id uint16) []byte {
	data := make([]byte, 256)
	binary.LittleEndian.PutUint16(data[192+20:], id)
	binary.LittleEndian.PutUint16(data[192+22:], version)
	return data
}

// psoc5DeviceMetadata builds a 56-byte metadata response in the PSoC5
// layout.
func psoc5DeviceMetadata(version, id uint16) []byte {
	block := make([]byte, protocol.MetadataSize)
	binary.LittleEndian.PutUint16(block[20:22], id)
	binary.LittleEndian.PutUint16(block[22:24], version)
	return block
}

func TestHostCheckMetadataPSoC5(t *testing.T) {
	newFixture := func(deviceVersion, deviceID uint16) *Host {
		fw := makeFirmware(t, rowLine(0, 5, psoc5MetadataRowData(256, 7)))
		tr := &mockTransport{}
		tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
		tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0xFF, 0x01})
		tr.addResponse(protocol.StatusSuccess, psoc5DeviceMetadata(deviceVersion, deviceID))
		host, err := NewHost(tr, fw, WithPSoC5Metadata())
		if err != nil {
			t.Fatalf("NewHost: %v", err)
		}
		return host
	}

	t.Run("newer device version is reported", func(t *testing.T) {
		host := newFixture(300, 7)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(false, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 1 {
			t.Fatalf("mismatches = %d, want 1", len(mismatches))
		}
		avm, ok := mismatches[0].(AppVersionMismatch)
		if !ok {
			t.Fatalf("mismatch type = %T, want AppVersionMismatch", mismatches[0])
		}
		if avm.Device != 300 || avm.Local != 256 {
			t.Errorf("mismatch = %+v, want device 300, local 256", avm)
		}
	})

	t.Run("matching metadata passes", func(t *testing.T) {
		host := newFixture(256, 7)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(false, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 0 {
			t.Errorf("mismatches = %v, want none", mismatches)
		}
	})

	t.Run("different app id is reported", func(t *testing.T) {
		host := newFixture(256, 9)
		enterAndVerify(t, host)

		mismatches, err := host.CheckMetadata(false, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mismatches) != 1 {
			t.Fatalf("mismatches = %d, want 1", len(mismatches))
		}
		aim, ok := mismatches[0].(AppIDMismatch)
		if !ok {
			t.Fatalf("mismatch type = %T, want AppIDMismatch", mismatches[0])
		}
		if aim.Device != 9 || aim.Local != 7 {
			t.Errorf("mismatch = %+v, want device 9, local 7", aim)
		}
	})
}

func TestHostWriteRowsAbortsOnMismatch(t *testing.T) {
	fw := makeFirmware(t,
		rowLine(0, 10, []byte{0x01, 0x02}),
		rowLine(0, 11, []byte{0x03, 0x04}),
	)

	tr := &mockTransport{}
	tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
	tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0xFF, 0x01})
	tr.addResponse(protocol.StatusSuccess, nil)          // program row 10
	tr.addResponse(protocol.StatusSuccess, []byte{0x00}) // wrong checksum back

	host, _ := NewHost(tr, fw)
	enterAndVerify(t, host)

	err := host.WriteRows()
	var rve *RowVerificationError
	if !errors.As(err, &rve) {
		t.Fatalf("error = %v (%T), want *RowVerificationError", err, err)
	}
	if rve.RowNum != 10 || rve.Expected != 0xFD || rve.Actual != 0x00 {
		t.Errorf("verification error = %+v", *rve)
	}

	programs := 0
	for _, op := range tr.sentOpcodes() {
		if op == protocol.CmdProgramRow {
			programs++
		}
	}
	if programs != 1 {
		t.Errorf("programmed %d rows before aborting, want 1", programs)
	}
	if host.State() != StateRangesVerified {
		t.Errorf("state = %v, want ranges-verified", host.State())
	}
}

func TestHostVerifyChecksumFails(t *testing.T) {
	fw := makeFirmware(t, rowLine(0, 10, []byte{0x01}))

	tr := &mockTransport{}
	tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
	tr.addResponse(protocol.StatusSuccess, []byte{0x00, 0x00, 0xFF, 0x01})
	tr.addResponse(protocol.StatusSuccess, nil)
	tr.addResponse(protocol.StatusSuccess, []byte{protocol.RowChecksum([]byte{0x01})})
	tr.addResponse(protocol.StatusSuccess, []byte{0x00}) // checksum does not verify

	host, _ := NewHost(tr, fw)
	enterAndVerify(t, host)
	if err := host.WriteRows(); err != nil {
		t.Fatalf("write rows: %v", err)
	}

	if err := host.VerifyChecksum(); !errors.Is(err, ErrGlobalChecksum) {
		t.Errorf("error = %v, want ErrGlobalChecksum", err)
	}
}

func TestHostGetApplicationInactive(t *testing.T) {
	tests := []struct {
		name    string
		app0    []byte
		app1    []byte
		want    byte
		wantErr error
	}{
		{
			name: "second slot inactive",
			app0: []byte{0x01, 0x01},
			app1: []byte{0x01, 0x00},
			want: 1,
		},
		{
			name: "first slot inactive",
			app0: []byte{0x01, 0x00},
			app1: []byte{0x01, 0x01},
			want: 0,
		},
		{
			name: "both inactive prefers second",
			app0: []byte{0x00, 0x00},
			app1: []byte{0x00, 0x00},
			want: 1,
		},
		{
			name:    "both active",
			app0:    []byte{0x01, 0x01},
			app1:    []byte{0x01, 0x01},
			wantErr: ErrNoInactiveApplication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := makeFirmware(t, rowLine(0, 0, []byte{0x01}))
			tr := &mockTransport{}
			tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
			tr.addResponse(protocol.StatusSuccess, tt.app0)
			tr.addResponse(protocol.StatusSuccess, tt.app1)

			host, _ := NewHost(tr, fw)
			if err := host.EnterBootloader(); err != nil {
				t.Fatalf("enter: %v", err)
			}

			got, err := host.GetApplicationInactive()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("inactive app = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHostStateGuards(t *testing.T) {
	fw := makeFirmware(t, rowLine(0, 0, []byte{0x01}))

	tests := []struct {
		name string
		call func(*Host) error
	}{
		{"write rows from idle", func(h *Host) error { return h.WriteRows() }},
		{"verify checksum from idle", func(h *Host) error { return h.VerifyChecksum() }},
		{"exit from idle", func(h *Host) error { return h.ExitBootloader() }},
		{"ranges from idle", func(h *Host) error { return h.VerifyRowRanges() }},
		{"metadata from idle", func(h *Host) error { _, err := h.CheckMetadata(false, false); return err }},
		{"app status from idle", func(h *Host) error { _, err := h.GetApplicationInactive(); return err }},
		{"set active from idle", func(h *Host) error { return h.SetApplicationActive(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, _ := NewHost(&mockTransport{}, fw)
			err := tt.call(host)
			var se *StateError
			if !errors.As(err, &se) {
				t.Errorf("error = %v (%T), want *StateError", err, err)
			}
		})
	}

	t.Run("enter twice", func(t *testing.T) {
		tr := &mockTransport{}
		tr.addResponse(protocol.StatusSuccess, deviceInfoPayload)
		host, _ := NewHost(tr, fw)
		if err := host.EnterBootloader(); err != nil {
			t.Fatalf("enter: %v", err)
		}
		var se *StateError
		if err := host.EnterBootloader(); !errors.As(err, &se) {
			t.Errorf("second enter error = %v, want *StateError", err)
		}
	})
}

func TestMismatchStrings(t *testing.T) {
	avm := AppVersionMismatch{Device: 300, Local: 256}
	if got := avm.String(); got != "device application version is v1.44, but local application version is v1.0" {
		t.Errorf("AppVersionMismatch.String() = %q", got)
	}

	aim := AppIDMismatch{Device: 2, Local: 1}
	if got := aim.String(); got != "device application ID is 2, but local application ID is 1" {
		t.Errorf("AppIDMismatch.String() = %q", got)
	}
}
