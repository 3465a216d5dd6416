package bootloader

// ProgressSink receives progress events while rows are being written.
//
// RowProgress is delivered after every programmed-and-verified row;
// ArrayCompleted is delivered once after the last row of each array, letting
// renderers draw a section break. Implementations should return quickly;
// they run on the programming thread.
type ProgressSink interface {
	RowProgress(message string, current, total int)
	ArrayCompleted()
}

// NopProgress is a ProgressSink that discards all events.
type NopProgress struct{}

func (NopProgress) RowProgress(message string, current, total int) {}

func (NopProgress) ArrayCompleted() {}
