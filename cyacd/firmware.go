package cyacd

import (
	"github.com/StrainMeasurementDevices/cyflash/protocol"
)

// Row is one flash row from the firmware image: a fixed-address block of
// data for one array, with its own self-checksum.
type Row struct {
	ArrayID  byte
	RowNum   uint16
	Data     []byte
	Checksum byte
}

// Array is the set of rows destined for one flash array. Rows keeps the
// order the rows appeared in the file; the bootload controller programs them
// in exactly that order.
type Array struct {
	ID   byte
	Rows []*Row

	byNum map[uint16]*Row
}

// Row returns the row with the given number, or nil if the image carries no
// data for it.
func (a *Array) Row(num uint16) *Row {
	return a.byNum[num]
}

// MaxRowNum returns the highest row number present in the array. The array
// is never empty; the parser only creates an array when it inserts a row.
func (a *Array) MaxRowNum() uint16 {
	max := a.Rows[0].RowNum
	for _, r := range a.Rows[1:] {
		if r.RowNum > max {
			max = r.RowNum
		}
	}
	return max
}

func (a *Array) insert(r *Row) {
	a.Rows = append(a.Rows, r)
	a.byNum[r.RowNum] = r
}

// Firmware is a parsed firmware image: the silicon identity it targets, the
// packet checksum algorithm the session must use, and the row data grouped
// by flash array. It is built once by Read/ReadFile and never mutated.
type Firmware struct {
	SiliconID  uint32
	SiliconRev byte

	// ChecksumType selects the wire packet checksum for the whole session.
	// Row self-checksums are always the 8-bit two's complement sum,
	// regardless of this field.
	ChecksumType protocol.ChecksumType

	// Arrays in order of first appearance in the file.
	Arrays []*Array

	byID map[byte]*Array
}

// Array returns the array with the given id, or nil if the image has none.
func (f *Firmware) Array(id byte) *Array {
	return f.byID[id]
}

// MaxArrayID returns the highest array id present in the image.
func (f *Firmware) MaxArrayID() byte {
	max := f.Arrays[0].ID
	for _, a := range f.Arrays[1:] {
		if a.ID > max {
			max = a.ID
		}
	}
	return max
}

// TotalRows returns the number of rows across all arrays.
func (f *Firmware) TotalRows() int {
	n := 0
	for _, a := range f.Arrays {
		n += len(a.Rows)
	}
	return n
}

// MetadataRow returns the row holding the application metadata block: the
// highest-numbered row of the highest array id, independent of file order.
// Firmware authors place the metadata block there by convention.
func (f *Firmware) MetadataRow() *Row {
	a := f.byID[f.MaxArrayID()]
	return a.Row(a.MaxRowNum())
}

func (f *Firmware) insert(r *Row) {
	a := f.byID[r.ArrayID]
	if a == nil {
		a = &Array{ID: r.ArrayID, byNum: make(map[uint16]*Row)}
		f.Arrays = append(f.Arrays, a)
		f.byID[r.ArrayID] = a
	}
	a.insert(r)
}
