package cache

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Sizer estimates the memory a value occupies, in bytes.
type Sizer[V any] func(v V) (int64, error)

// Sizeable is implemented by values that report their own size.
type Sizeable interface {
	SizeBytes() int64
}

// DefaultSizer uses Sizeable when V implements it and otherwise measures
// the JSON encoding of v.
func DefaultSizer[V any](v V) (int64, error) {
	if s, ok := any(v).(Sizeable); ok {
		return s.SizeBytes(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// measure runs sizer, converting a panic or a negative size into an error.
func measure[V any](sizer Sizer[V], v V) (size int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("size estimation panicked: %v", r)
		}
	}()
	size, err = sizer(v)
	if err == nil && size < 0 {
		err = fmt.Errorf("negative size %d", size)
	}
	return size, err
}
