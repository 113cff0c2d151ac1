package inspect

import "context"

// Option configures the entities provided by this package.
type Option func(*base)

// WithValidity sets the validity check. Entities are valid by default.
func WithValidity(valid func(ctx context.Context) bool) Option {
	return func(b *base) {
		b.valid = valid
	}
}

// base carries what every entity in this package shares.
type base struct {
	valid func(ctx context.Context) bool
}

func (b *base) apply(opts []Option) {
	for _, opt := range opts {
		opt(b)
	}
}

// IsValid implements Entity.
func (b *base) IsValid(ctx context.Context) bool {
	if b.valid == nil {
		return true
	}
	return b.valid(ctx)
}
