package store

import (
	"errors"
	"fmt"

	"entitydb/pkg/dberrors"
	"entitydb/pkg/entity"
)

var (
	ErrInvalidPatch     = errors.New("invalid json patch")
	ErrInvalidPredicate = errors.New("invalid predicate")
)

// guard runs fn and turns a key type panic of the engine into an error.
// Other panics are not recovered.
func guard[T any](fn func() (*entity.Snapshot[T], error)) (snap *entity.Snapshot[T], err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var invalid *entity.InvalidKeyTypeError
		if e, ok := r.(error); ok && errors.As(e, &invalid) {
			snap, err = nil, fmt.Errorf("%w: %w", dberrors.ErrInvalidArgument, invalid)
			return
		}
		panic(r)
	}()
	return fn()
}
