//go:build !linux

package transport

import (
	"errors"
	"time"
)

// SocketCAN is only available on Linux; this stub keeps callers compiling
// elsewhere.
type SocketCAN struct{}

func OpenSocketCAN(iface string) (*SocketCAN, error) {
	return nil, errors.New("socketcan: only supported on linux")
}

func (s *SocketCAN) SendFrame(f Frame) error {
	return errors.New("socketcan: only supported on linux")
}

func (s *SocketCAN) RecvFrame(timeout time.Duration) (Frame, bool, error) {
	return Frame{}, false, errors.New("socketcan: only supported on linux")
}

func (s *SocketCAN) Close() error { return nil }
