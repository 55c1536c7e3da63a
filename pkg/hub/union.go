package hub

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownVariant is returned when a frame's RequestFor tag has no
// registered variant.
var ErrUnknownVariant = errors.New("unknown frame variant")

// Union decodes frames into one of several variants selected by the
// RequestFor header. T is normally an interface implemented by every variant.
type Union[T any] struct {
	variants map[string]func(Frame) (T, error)
}

// NewUnion creates an empty union.
func NewUnion[T any]() *Union[T] {
	return &Union[T]{variants: make(map[string]func(Frame) (T, error))}
}

// AddVariant registers the variant for tag. Frames with that tag are decoded
// into a V and converted with wrap.
func AddVariant[T, V any](u *Union[T], tag string, wrap func(V) T) *Union[T] {
	u.variants[tag] = func(f Frame) (T, error) {
		var v V
		if err := f.Decode(&v); err != nil {
			var zero T
			return zero, fmt.Errorf("decode %s: %w", tag, err)
		}
		return wrap(v), nil
	}
	return u
}

// Decode selects the variant by f.Header.RequestFor.
func (u *Union[T]) Decode(f Frame) (T, error) {
	dec, ok := u.variants[f.Header.RequestFor]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q", ErrUnknownVariant, f.Header.RequestFor)
	}
	return dec(f)
}

// Tags returns the registered tags in sorted order.
func (u *Union[T]) Tags() []string {
	tags := make([]string, 0, len(u.variants))
	for t := range u.variants {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
