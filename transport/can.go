package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/StrainMeasurementDevices/cyflash/protocol"
)

// FrameDataSize is the classical CAN payload limit per frame.
const FrameDataSize = 8

// Frame is one classical CAN frame: an arbitration identifier and up to
// eight data bytes. len(Data) is the DLC.
type Frame struct {
	ID   uint32
	Data []byte
}

// FrameBus is an open CAN bus handle. RecvFrame waits up to timeout for the
// next inbound frame and reports ok=false when none arrived; a zero timeout
// polls without blocking.
type FrameBus interface {
	SendFrame(f Frame) error
	RecvFrame(timeout time.Duration) (f Frame, ok bool, err error)
}

// CANConfig carries the per-session CAN transport parameters.
type CANConfig struct {
	// FrameID is the arbitration identifier tagging every outgoing frame.
	FrameID uint32

	// Timeout bounds each frame read while receiving a response or an echo.
	Timeout time.Duration

	// Echo enables echo synchronization: after each sent frame the
	// transport waits until the bus reflects it back before sending the
	// next one. This is the backpressure mechanism of choice on a shared
	// bus; it trades throughput for ordering.
	Echo bool

	// SendDelay is the fixed pause between frames when echo
	// synchronization is off - a weaker, best-effort substitute.
	SendDelay time.Duration
}

// CAN is the frame-segmented transport for CAN-connected bootloaders.
// Outgoing packets are split into frames of at most FrameDataSize bytes;
// inbound frames are reassembled until the packet length declared in the
// first frame is satisfied.
type CAN struct {
	bus FrameBus
	cfg CANConfig
	log logrus.FieldLogger
}

// NewCAN wraps an open frame bus.
func NewCAN(bus FrameBus, cfg CANConfig) *CAN {
	return &CAN{
		bus: bus,
		cfg: cfg,
		log: logrus.WithField("component", "can-transport"),
	}
}

// Send segments one framed packet into CAN frames and sends them in order.
// Stale inbound frames are drained before each send. With echo
// synchronization on, the next frame is held back until the just-sent frame
// is observed on the bus; frames that do not match the sent bytes are
// discarded, whatever their arbitration id.
func (t *CAN) Send(data []byte) error {
	for start := 0; start < len(data); start += FrameDataSize {
		end := start + FrameDataSize
		if end > len(data) {
			end = len(data)
		}
		frame := Frame{ID: t.cfg.FrameID, Data: data[start:end]}

		if err := t.drain(); err != nil {
			return err
		}

		t.log.Debugf("-> id=0x%X % X", frame.ID, frame.Data)
		if err := t.bus.SendFrame(frame); err != nil {
			return fmt.Errorf("can send: %w", err)
		}

		if t.cfg.Echo {
			if err := t.awaitEcho(frame); err != nil {
				return err
			}
		} else if t.cfg.SendDelay > 0 {
			time.Sleep(t.cfg.SendDelay)
		}
	}
	return nil
}

// drain discards inbound frames left over from earlier traffic.
func (t *CAN) drain() error {
	for {
		_, ok, err := t.bus.RecvFrame(0)
		if err != nil {
			return fmt.Errorf("can drain: %w", err)
		}
		if !ok {
			return nil
		}
	}
}

func (t *CAN) awaitEcho(sent Frame) error {
	for {
		frame, ok, err := t.bus.RecvFrame(t.cfg.Timeout)
		if err != nil {
			return fmt.Errorf("can echo read: %w", err)
		}
		if !ok {
			return &TimeoutError{Op: "waiting for echo frame"}
		}
		// The echo may come back under a different arbitration id;
		// match on the frame bytes only.
		if !bytes.Equal(frame.Data, sent.Data) {
			continue
		}
		return nil
	}
}

// Recv reassembles one response packet. The first accepted frame must carry
// the packet head (SOP, status, little-endian length); frames tagged with a
// foreign arbitration id are skipped while waiting for it. Continuation
// frames are accumulated until 4 + declared length + 3 bytes have arrived;
// in echo mode, continuation frames with a foreign id are skipped as well.
func (t *CAN) Recv() ([]byte, error) {
	var first Frame
	for {
		frame, ok, err := t.bus.RecvFrame(t.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("can read: %w", err)
		}
		if !ok {
			return nil, &TimeoutError{Op: "waiting for first response frame"}
		}
		if frame.ID != t.cfg.FrameID {
			continue
		}
		if len(frame.Data) < 4 {
			return nil, &FrameError{Reason: fmt.Sprintf("%d bytes, minimum is 4", len(frame.Data))}
		}
		if frame.Data[0] != protocol.StartOfPacket {
			return nil, &FrameError{Reason: fmt.Sprintf("starts with 0x%02X, expected 0x%02X",
				frame.Data[0], protocol.StartOfPacket)}
		}
		first = frame
		break
	}

	packet := append([]byte(nil), first.Data...)
	total := 4 + int(binary.LittleEndian.Uint16(packet[2:4])) + 3
	for len(packet) < total {
		frame, ok, err := t.bus.RecvFrame(t.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("can read: %w", err)
		}
		if !ok {
			return nil, &TimeoutError{Op: "waiting for response frame"}
		}
		if t.cfg.Echo && frame.ID != t.cfg.FrameID {
			// Frame from another device.
			continue
		}
		packet = append(packet, frame.Data...)
	}

	t.log.Debugf("<- % X", packet)
	return packet, nil
}
