package decoder

import "github.com/google/uuid"

type options struct {
	id            string
	stopAtFence   bool
	salvageDrafts bool
}

// Option configures a Session or Stream.
type Option func(*options)

// WithSessionID fixes the session ID instead of generating one.
func WithSessionID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithStopAtFence makes the narrative also end at the first ``` fence.
func WithStopAtFence(enabled bool) Option {
	return func(o *options) { o.stopAtFence = enabled }
}

// WithSalvageDrafts keeps never-closed file blocks in the final result.
func WithSalvageDrafts(enabled bool) Option {
	return func(o *options) { o.salvageDrafts = enabled }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return o
}
