package driver

import "fmt"

// Integer is the set of reply types whose value can stand in for a status.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Reply is the raw result of a driver primitive. Some primitives return a
// bare value, others a (status, value) pair.
type Reply[T any] struct {
	paired bool
	status int
	value  T
}

// Value builds a bare reply.
func Value[T any](v T) Reply[T] {
	return Reply[T]{value: v}
}

// Pair builds a (status, value) reply.
func Pair[T any](status int, v T) Reply[T] {
	return Reply[T]{paired: true, status: status, value: v}
}

// IsPair reports whether r came back as a (status, value) pair.
func (r Reply[T]) IsPair() bool {
	return r.paired
}

// Unwrap returns the bare value of r, or one field of a pair: the status when
// second is false, the value when second is true.
func Unwrap[T Integer](r Reply[T], second bool) T {
	if !r.paired || second {
		return r.value
	}

	return T(r.status)
}

// Code reads a status-shaped reply, where a pair leads with the status.
func Code[T Integer](r Reply[T]) T {
	return Unwrap(r, false)
}

// Payload reads a data-shaped reply, where a pair carries the data second.
func Payload[T any](r Reply[T]) T {
	return r.value
}

// Failed reports whether a data-shaped reply came back paired with a
// non-zero status.
func Failed[T any](r Reply[T]) bool {
	return r.paired && r.status != 0
}

// StatusOf returns the status of a pair, or zero for a bare reply.
func StatusOf[T any](r Reply[T]) int {
	return r.status
}

// StatusError carries a raw status code reported by the driver.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: driver status %d", e.Op, e.Code)
}

// NewStatusError creates an error from a driver status code.
func NewStatusError(op string, code int) error {
	return &StatusError{Op: op, Code: code}
}
