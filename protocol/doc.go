// Package protocol implements the Cypress/Infineon bootloader wire protocol:
// the two packet checksum algorithms, typed command and response shapes, and
// the packet codec that frames commands and validates response frames.
//
// Every packet in a session is checksummed with the algorithm declared in the
// firmware image header, selected once via NewCodec. A non-zero status byte
// in a response decodes to a DeviceError; malformed frames decode to an
// InvalidPacketError. Both are fatal to the operation in progress - the
// protocol offers no way to correlate retried packets with their responses.
//
// The package is transport-agnostic: it produces and consumes complete frame
// byte slices and never touches a port.
package protocol
