package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Serial is the byte-stream transport for UART-connected bootloaders. The
// port is any open serial handle whose Read honors a configured timeout by
// returning zero bytes; baud rate, parity and modem lines are the opener's
// concern.
type Serial struct {
	port io.ReadWriter
	log  logrus.FieldLogger
}

// NewSerial wraps an open serial port.
func NewSerial(port io.ReadWriter) *Serial {
	return &Serial{
		port: port,
		log:  logrus.WithField("component", "serial-transport"),
	}
}

// Send writes one framed packet to the port.
func (t *Serial) Send(data []byte) error {
	t.log.Debugf("-> % X", data)
	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("serial write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

// Recv reads one complete response frame. The first four bytes carry the
// SOP, status and little-endian data length; the declared length plus the
// three trailing bytes (checksum and EOP) determine the remainder. A short
// read at either stage is a timeout.
func (t *Serial) Recv() ([]byte, error) {
	header := make([]byte, 4)
	if err := t.readFull(header); err != nil {
		return nil, err
	}

	size := int(binary.LittleEndian.Uint16(header[2:4]))
	packet := make([]byte, 4+size+3)
	copy(packet, header)
	if err := t.readFull(packet[4:]); err != nil {
		return nil, err
	}

	t.log.Debugf("<- % X", packet)
	return packet, nil
}

func (t *Serial) readFull(buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := t.port.Read(buf[read:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &TimeoutError{Op: "waiting for bootloader response"}
			}
			return fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			// Serial ports report an expired read timeout as a
			// zero-byte read with no error.
			return &TimeoutError{Op: "waiting for bootloader response"}
		}
		read += n
	}
	return nil
}
