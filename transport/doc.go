// Package transport carries framed bootloader packets over a serial line or
// a CAN bus.
//
// Serial is a thin byte-stream framing layer over any open port. CAN
// segments each packet into 8-byte frames under one arbitration identifier
// and reassembles responses, with either echo synchronization or a fixed
// inter-frame delay to keep the host from outrunning the bus. SocketCAN
// provides the Linux frame bus; any other FrameBus implementation plugs in
// the same way.
package transport
