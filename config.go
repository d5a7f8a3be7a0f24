package utp

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/wireloop/go-utp/internal/buffer"
)

// Config holds every tunable the spec recognizes as engine configuration
// (recv_buf_bytes, reorder_buf_max, delayed_ack_byte_threshold,
// delayed_ack_time_ms, pkt_size), plus the dial/accept/retry knobs the
// outer connection plumbing needs that the buffer engine itself has no
// opinion about.
type Config struct {
	RecvBufBytes            uint32 `yaml:"recv_buf_bytes"`
	ReorderBufMax           int    `yaml:"reorder_buf_max"`
	DelayedAckByteThreshold uint32 `yaml:"delayed_ack_byte_threshold"`
	DelayedAckTimeMs        uint32 `yaml:"delayed_ack_time_ms"`
	PktSize                 uint32 `yaml:"pkt_size"`

	MaxWindowSend    uint32        `yaml:"max_window_send"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	RetransmitTick   time.Duration `yaml:"retransmit_tick"`
	MaxRetries       int           `yaml:"max_retries"`
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	bufDefaults := buffer.DefaultConfig()
	return Config{
		RecvBufBytes:            bufDefaults.RecvBufBytes,
		ReorderBufMax:           bufDefaults.ReorderBufMax,
		DelayedAckByteThreshold: bufDefaults.DelayedAckByteThreshold,
		DelayedAckTimeMs:        bufDefaults.DelayedAckTimeMs,
		PktSize:                 bufDefaults.PktSize,
		MaxWindowSend:           DEFAULT_WINDOW_SIZE,
		DialTimeout:             5 * time.Second,
		RetransmitTick:          DEFAULT_TIMEOUT,
		MaxRetries:              MAX_RETRIES,
	}
}

// LoadConfig reads a YAML configuration file over DefaultConfig: fields
// absent from the file keep their default values, while a field present in
// the file replaces its default, even when the value given is zero.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

func (c Config) bufferConfig() buffer.Config {
	return buffer.Config{
		RecvBufBytes:            c.RecvBufBytes,
		ReorderBufMax:           c.ReorderBufMax,
		DelayedAckByteThreshold: c.DelayedAckByteThreshold,
		DelayedAckTimeMs:        c.DelayedAckTimeMs,
		PktSize:                 c.PktSize,
	}
}
