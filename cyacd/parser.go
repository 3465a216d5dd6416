package cyacd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/StrainMeasurementDevices/cyflash/protocol"
)

const (
	headerSize    = 6
	rowHeaderSize = 5
	minRowSize    = rowHeaderSize + 1
)

// ReadFile parses the firmware image at the given path.
func ReadFile(path string) (*Firmware, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read parses a firmware image from r.
//
// The first line is the 12-hex-character header:
//
//	[SILICON_ID(4 BE)][SILICON_REV(1)][CHECKSUM_TYPE(1)]
//
// Every following line is a ':'-prefixed hex row:
//
//	[ARRAY_ID(1)][ROW_NUM(2 BE)][DATA_LEN(2 BE)][DATA...][CHECKSUM(1)]
//
// The trailing checksum byte must equal the 8-bit two's complement sum of
// the row data. Rows are kept in file order within each array.
func Read(r io.Reader) (*Firmware, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, &HeaderError{Reason: "empty image"}
	}

	fw, err := parseHeader(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, err
	}

	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		row, err := parseRow(text, line)
		if err != nil {
			return nil, err
		}
		fw.insert(row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	if len(fw.Arrays) == 0 {
		return nil, fmt.Errorf("image contains no rows")
	}

	return fw, nil
}

func parseHeader(line string) (*Firmware, error) {
	header, err := hex.DecodeString(line)
	if err != nil {
		return nil, &HeaderError{Reason: fmt.Sprintf("invalid hex: %v", err)}
	}
	if len(header) != headerSize {
		return nil, &HeaderError{Reason: fmt.Sprintf("decodes to %d bytes, expected %d", len(header), headerSize)}
	}

	fw := &Firmware{
		SiliconID: uint32(header[0])<<24 | uint32(header[1])<<16 |
			uint32(header[2])<<8 | uint32(header[3]),
		SiliconRev:   header[4],
		ChecksumType: protocol.ChecksumType(header[5]),
		byID:         make(map[byte]*Array),
	}
	if !fw.ChecksumType.Valid() {
		return nil, &HeaderError{Reason: fmt.Sprintf("invalid checksum type 0x%02X", header[5])}
	}

	return fw, nil
}

func parseRow(line string, lineNum int) (*Row, error) {
	if line[0] != ':' {
		return nil, fmt.Errorf("line %d: rows must start with a colon", lineNum)
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid hex: %w", lineNum, err)
	}
	if len(raw) < minRowSize {
		return nil, fmt.Errorf("line %d: row decodes to %d bytes, minimum is %d", lineNum, len(raw), minRowSize)
	}

	arrayID := raw[0]
	rowNum := uint16(raw[1])<<8 | uint16(raw[2])
	dataLen := uint16(raw[3])<<8 | uint16(raw[4])
	data := raw[rowHeaderSize : len(raw)-1]
	declared := raw[len(raw)-1]

	if int(dataLen) != len(data) {
		return nil, fmt.Errorf("line %d: %w", lineNum, &RowLengthError{Declared: dataLen, Actual: len(data)})
	}
	if computed := protocol.RowChecksum(data); computed != declared {
		return nil, &RowChecksumError{Line: lineNum, Expected: declared, Actual: computed}
	}

	row := &Row{
		ArrayID:  arrayID,
		RowNum:   rowNum,
		Data:     make([]byte, len(data)),
		Checksum: declared,
	}
	copy(row.Data, data)

	return row, nil
}
