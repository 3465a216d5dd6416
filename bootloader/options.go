package bootloader

import "github.com/sirupsen/logrus"

// DefaultChunkSize is the default Send Data chunk size in bytes.
const DefaultChunkSize = 25

type hostConfig struct {
	key       []byte
	chunkSize int
	psoc5     bool
	progress  ProgressSink
	log       logrus.FieldLogger
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		chunkSize: DefaultChunkSize,
		progress:  NopProgress{},
		log:       logrus.WithField("component", "bootloader-host"),
	}
}

// Option configures a Host.
type Option func(*hostConfig)

// WithKey sets the 6-byte security key sent with Enter Bootloader.
func WithKey(key []byte) Option {
	return func(c *hostConfig) {
		c.key = key
	}
}

// WithChunkSize sets the maximum Send Data chunk size for row transfers.
func WithChunkSize(size int) Option {
	return func(c *hostConfig) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithPSoC5Metadata selects the PSoC5 metadata layout for CheckMetadata.
// The default is the PSoC3/PSoC4 layout.
func WithPSoC5Metadata() Option {
	return func(c *hostConfig) {
		c.psoc5 = true
	}
}

// WithProgress sets the sink for row programming progress events.
func WithProgress(sink ProgressSink) Option {
	return func(c *hostConfig) {
		if sink != nil {
			c.progress = sink
		}
	}
}

// WithLogger replaces the host's logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *hostConfig) {
		if log != nil {
			c.log = log
		}
	}
}
