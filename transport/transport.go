package transport

// Transport moves complete protocol packets between the host and the
// resident bootloader. Implementations are handed an already-open device
// handle; they never open or configure ports themselves.
//
// Both methods block. Recv returns one whole response frame or a
// TimeoutError when the device does not produce a complete frame within the
// transport's window. No transport retries anything: every error propagates
// to the caller, which treats it as fatal to the operation in progress.
type Transport interface {
	Send(data []byte) error
	Recv() ([]byte, error)
}

// TimeoutError reports that no complete frame or packet arrived in time. It
// is distinct from framing errors: the bytes that did arrive were not
// malformed, there were just not enough of them.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return "timed out " + e.Op
}

// FrameError reports an inbound frame that cannot open a response packet:
// too short to carry the packet head, or not starting with the
// start-of-packet marker. Like a timeout, it ends the operation in progress;
// unlike a timeout, the bytes that arrived were wrong, not merely late.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return "bad response frame: " + e.Reason
}
