// Package cyacd parses .cyacd firmware images produced by PSoC Creator.
//
// An image is a text file: one header line naming the target silicon and the
// wire checksum algorithm, then one ':'-prefixed hex line per flash row.
// Every row carries its own 8-bit self-checksum, validated at parse time so a
// truncated or corrupted image is rejected before any device traffic starts.
//
// The parsed Firmware keeps rows in file order within each array. The
// bootload controller depends on that: rows are programmed in encounter
// order, and the metadata block lives in the logically-last row (highest row
// of the highest array), which need not be the last line of the file.
package cyacd
