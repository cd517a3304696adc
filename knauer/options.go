package knauer

import "github.com/automatedchemistry/flowchem/logger"

type options struct {
	logger logger.Logger
	asID   int
}

// Option configures a Knauer device handle.
type Option func(*options)

// WithLogger sets the device logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAutosamplerID sets the device id the autosampler answers to. Ignored
// by valves and pumps.
func WithAutosamplerID(id int) Option {
	return func(o *options) { o.asID = id }
}

func newOptions(opts ...Option) *options {
	o := &options{logger: logger.GetLogger(), asID: DefaultAutosamplerID}

	for _, opt := range opts {
		opt(o)
	}

	return o
}
