//go:build linux

package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// socketcan frame flags and masks, per linux/can.h.
const (
	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
	canEffMask = 0x1FFFFFFF

	canFrameSize = 16
)

// SocketCAN is a FrameBus over a Linux raw CAN socket. It satisfies the bus
// handle contract the CAN transport expects; open it with OpenSocketCAN and
// hand it to NewCAN.
type SocketCAN struct {
	fd    int
	iface string
}

// OpenSocketCAN binds a raw CAN socket to the named interface (e.g. "can0").
func OpenSocketCAN(iface string) (*SocketCAN, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: interface %s: %w", iface, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %s: %w", iface, err)
	}

	return &SocketCAN{fd: fd, iface: iface}, nil
}

// SendFrame writes one classical CAN frame.
func (s *SocketCAN) SendFrame(f Frame) error {
	if len(f.Data) > FrameDataSize {
		return fmt.Errorf("socketcan: frame data is %d bytes, maximum is %d", len(f.Data), FrameDataSize)
	}

	id := f.ID
	if id > unix.CAN_SFF_MASK {
		id |= canEffFlag
	}

	buf := make([]byte, canFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = byte(len(f.Data))
	copy(buf[8:], f.Data)

	if _, err := unix.Write(s.fd, buf); err != nil {
		return fmt.Errorf("socketcan: write: %w", err)
	}
	return nil
}

// RecvFrame reads the next frame, waiting at most timeout. A zero timeout
// polls the socket without blocking.
func (s *SocketCAN) RecvFrame(timeout time.Duration) (Frame, bool, error) {
	pfd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Frame{}, false, fmt.Errorf("socketcan: poll: %w", err)
		}
		if n == 0 {
			return Frame{}, false, nil
		}
		break
	}

	buf := make([]byte, canFrameSize)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return Frame{}, false, fmt.Errorf("socketcan: read: %w", err)
	}
	if n < canFrameSize {
		return Frame{}, false, fmt.Errorf("socketcan: short frame read: %d bytes", n)
	}

	id := binary.LittleEndian.Uint32(buf[0:4])
	if id&canRtrFlag != 0 {
		// Remote frames carry no data; nothing in this protocol uses them.
		return Frame{ID: id & canEffMask}, true, nil
	}

	dlc := int(buf[4])
	if dlc > FrameDataSize {
		dlc = FrameDataSize
	}

	return Frame{
		ID:   id & canEffMask,
		Data: append([]byte(nil), buf[8:8+dlc]...),
	}, true, nil
}

// Close releases the socket.
func (s *SocketCAN) Close() error {
	return unix.Close(s.fd)
}
