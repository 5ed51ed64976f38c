package lock

// Option configures a locker at construction time.
type Option func(*options)

type options struct {
	data []byte
}

// WithData attaches data to the sequential node this locker creates,
// retrievable by other instances via OwnerData while this one owns (or
// is queued for) the lock.
func WithData(data []byte) Option {
	return func(o *options) { o.data = data }
}

func buildOptions(opts ...Option) options {
	var o options
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
