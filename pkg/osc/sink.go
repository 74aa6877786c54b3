// Package osc sends tracker payloads to the installation over OSC/UDP.
package osc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	gosc "github.com/hypebeast/go-osc/osc"

	"github.com/teslashibe/go-jellyfish/internal/config"
	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/internal/timeutil"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("osc: sink closed")

// Config holds the OSC destination and send policy
type Config struct {
	Host    string  `json:"host"`
	Port    int     `json:"port"`
	MaxRate float64 `json:"max_rate"` // Sends per second, 0 = every frame
	Bundle  bool    `json:"bundle"`   // Wrap each frame in one timetagged bundle
}

// DefaultConfig returns the local Processing sketch destination at 30 Hz
func DefaultConfig() Config {
	return Config{
		Host:    config.DefaultOSCHost,
		Port:    config.DefaultOSCPort,
		MaxRate: 30,
	}
}

// Validate checks the destination and rate.
func (c Config) Validate() error {
	if c.Host == "" {
		return config.Invalid("Host", "must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return config.Invalid("Port", "must be in 1-65535, got %d", c.Port)
	}
	if !(c.MaxRate >= 0) {
		return config.Invalid("MaxRate", "must not be negative, got %g", c.MaxRate)
	}
	return nil
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Sender transmits one OSC packet. *gosc.Client satisfies it.
type Sender interface {
	Send(packet gosc.Packet) error
}

// Stats counts sink activity.
type Stats struct {
	Sent      uint64
	Throttled uint64
	Errors    uint64
}

// Sink sends payloads to one destination, capped by a Throttle.
type Sink struct {
	cfg      Config
	sender   Sender
	clock    timeutil.Clock
	throttle *Throttle
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
	stats  Stats
}

// Option configures a Sink.
type Option func(*Sink)

// WithSender replaces the UDP client, e.g. for tests.
func WithSender(s Sender) Option {
	return func(k *Sink) {
		k.sender = s
	}
}

// WithClock sets the clock used by the rate cap and bundle timetags.
func WithClock(c timeutil.Clock) Option {
	return func(k *Sink) {
		k.clock = c
	}
}

// NewSink creates a sink for cfg.
func NewSink(cfg Config, opts ...Option) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("osc: %w", err)
	}

	s := &Sink{
		cfg:   cfg,
		clock: timeutil.RealClock{},
		log:   log.Component("osc").With("dest", cfg.Addr()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sender == nil {
		s.sender = gosc.NewClient(cfg.Host, cfg.Port)
	}
	s.throttle = NewThrottle(cfg.MaxRate, s.clock)

	s.log.Info("OSC sink ready", "max_rate", cfg.MaxRate, "bundle", cfg.Bundle)
	return s, nil
}

// Config returns the sink configuration.
func (s *Sink) Config() Config {
	return s.cfg
}

// Send transmits p unless the rate cap skips this frame.
// It reports whether the payload was sent.
func (s *Sink) Send(p protocol.Payload) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if !s.throttle.Allow() {
		s.stats.Throttled++
		return false, nil
	}

	for _, pkt := range s.packets(p) {
		if err := s.sender.Send(pkt); err != nil {
			s.stats.Errors++
			return false, fmt.Errorf("osc: send to %s: %w", s.cfg.Addr(), err)
		}
	}
	s.stats.Sent++
	return true, nil
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops further sends. The UDP client dials per packet, so there
// is no socket to release.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Sink) packets(p protocol.Payload) []gosc.Packet {
	msgs := Messages(p)
	if !s.cfg.Bundle {
		pkts := make([]gosc.Packet, len(msgs))
		for i, m := range msgs {
			pkts[i] = m
		}
		return pkts
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	bundle := gosc.NewBundle(ts)
	for _, m := range msgs {
		// Appending a *Message to a bundle cannot fail.
		_ = bundle.Append(m)
	}
	return []gosc.Packet{bundle}
}

// Messages converts a payload into its OSC messages in send order.
// The legacy /hand message is included only when p.Hand is set.
func Messages(p protocol.Payload) []*gosc.Message {
	msgs := []*gosc.Message{
		floatMessage(protocol.AddrHands, p.Hands),
		floatMessage(protocol.AddrHandSize, p.HandSize),
		floatMessage(protocol.AddrArmEnergy, p.ArmEnergy),
	}
	if p.Hand != nil {
		msgs = append(msgs, floatMessage(protocol.AddrHand, p.Hand))
	}
	return msgs
}

func floatMessage(addr string, values []float32) *gosc.Message {
	msg := gosc.NewMessage(addr)
	for _, v := range values {
		msg.Append(v)
	}
	return msg
}
