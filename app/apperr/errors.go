// Package apperr holds the error kinds callers are expected to tell apart.
package apperr

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type notFoundError struct {
	kind string
	id   any
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.kind, e.id)
}

func (e *notFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound reports an unknown athlete, activity, challenge or notification id.
func NotFound(kind string, id any) error {
	return &notFoundError{kind: kind, id: id}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UpstreamAuthError means the provider rejected a token exchange or refresh.
// The stored credentials are left untouched so the caller can retry later.
type UpstreamAuthError struct {
	AthleteId int64
	Err       error
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("upstream auth failed for athlete %d: %v", e.AthleteId, e.Err)
}

func (e *UpstreamAuthError) Unwrap() error {
	return e.Err
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// TransientDeliveryError is raised by a feed subscriber and handled by the
// resilient subscription; it never reaches a publisher.
type TransientDeliveryError struct {
	Err error
}

func (e *TransientDeliveryError) Error() string {
	return "feed delivery: " + e.Err.Error()
}

func (e *TransientDeliveryError) Unwrap() error {
	return e.Err
}

func IsUpstreamAuth(err error) bool {
	var target *UpstreamAuthError
	return errors.As(err, &target)
}

func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
