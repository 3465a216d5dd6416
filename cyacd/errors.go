package cyacd

import "fmt"

// HeaderError reports a first line that does not decode to the 6-byte image
// header.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string {
	return "malformed image header: " + e.Reason
}

// RowLengthError reports a row whose decoded data length differs from the
// length declared in the row header.
type RowLengthError struct {
	Declared uint16
	Actual   int
}

func (e *RowLengthError) Error() string {
	return fmt.Sprintf("row declared %d bytes of data, but got %d", e.Declared, e.Actual)
}

// RowChecksumError reports a row whose trailing checksum byte does not match
// the computed checksum of its data. Line is the 1-based line number in the
// image source.
type RowChecksumError struct {
	Line     int
	Expected byte
	Actual   byte
}

func (e *RowChecksumError) Error() string {
	return fmt.Sprintf("computed checksum 0x%02X, but expected 0x%02X on line %d",
		e.Actual, e.Expected, e.Line)
}
