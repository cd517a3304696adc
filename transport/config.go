package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/automatedchemistry/flowchem/logger"
)

// Default timeout values shared by serial and TCP channels.
const (
	DefaultExchangeTimeout = 2 * time.Second
	DefaultConnectTimeout  = 5 * time.Second

	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultStopBits = 1
)

// Timeout range limits. Lab hardware replies within tens of milliseconds;
// anything above a minute indicates a misconfiguration.
const (
	MinExchangeTimeout = 10 * time.Millisecond
	MaxExchangeTimeout = 60 * time.Second
)

// Parity is the serial parity mode.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// Config holds the channel configuration shared by serial and TCP
// transports. Construct it through NewSerial/NewTCP with functional options.
type Config struct {
	exchangeTimeout time.Duration
	connectTimeout  time.Duration

	// Serial line parameters. Ignored by TCP transports.
	baudRate uint
	dataBits uint
	stopBits uint
	parity   Parity

	logger logger.Logger
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		exchangeTimeout: DefaultExchangeTimeout,
		connectTimeout:  DefaultConnectTimeout,
		baudRate:        DefaultBaudRate,
		dataBits:        DefaultDataBits,
		stopBits:        DefaultStopBits,
		parity:          ParityNone,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ExchangeTimeout returns the maximum duration of one exchange.
func (cfg *Config) ExchangeTimeout() time.Duration { return cfg.exchangeTimeout }

// ConnectTimeout returns the dial/open timeout.
func (cfg *Config) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a transport.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithExchangeTimeout sets the maximum duration of one exchange
// (write + complete reply).
func WithExchangeTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinExchangeTimeout || d > MaxExchangeTimeout {
			return fmt.Errorf("transport: exchange timeout %v out of range [%v, %v]",
				d, MinExchangeTimeout, MaxExchangeTimeout)
		}
		cfg.exchangeTimeout = d

		return nil
	})
}

// WithConnectTimeout sets the dial/open timeout.
func WithConnectTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("transport: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithBaudRate sets the serial baud rate.
func WithBaudRate(rate uint) Option {
	return optFunc(func(cfg *Config) error {
		if rate == 0 {
			return errors.New("transport: baud rate must be positive")
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithDataBits sets the number of serial data bits (7 or 8).
func WithDataBits(bits uint) Option {
	return optFunc(func(cfg *Config) error {
		if bits != 7 && bits != 8 {
			return fmt.Errorf("transport: data bits %d not supported, want 7 or 8", bits)
		}
		cfg.dataBits = bits

		return nil
	})
}

// WithStopBits sets the number of serial stop bits (1 or 2).
func WithStopBits(bits uint) Option {
	return optFunc(func(cfg *Config) error {
		if bits != 1 && bits != 2 {
			return fmt.Errorf("transport: stop bits %d not supported, want 1 or 2", bits)
		}
		cfg.stopBits = bits

		return nil
	})
}

// WithParity sets the serial parity mode.
func WithParity(p Parity) Option {
	return optFunc(func(cfg *Config) error {
		if p > ParityEven {
			return fmt.Errorf("transport: unknown parity mode %d", p)
		}
		cfg.parity = p

		return nil
	})
}

// WithLogger sets the logger for the transport.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("transport: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
