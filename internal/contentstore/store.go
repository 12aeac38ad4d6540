// Package contentstore puts document bytes into a content-addressed blob
// store and turns content identifiers into retrieval locators.
package contentstore

import (
	"context"
	"errors"
	"fmt"

	dErrors "ekyc/pkg/domain-errors"
)

// Store is the capability the lifecycle manager needs from a blob backend.
// Implementations do not retry; callers own retry policy.
type Store interface {
	Put(ctx context.Context, data []byte, filename string) (string, error)
	Resolve(contentID string) (string, error)
}

// Kind classifies a put/resolve failure.
//
// HTTP answers are split by whether repeating the same request can succeed:
// 408, 429 and 5xx mean the service is failing and map to KindUnavailable,
// every other non-2xx answer and an undecodable 2xx body map to
// KindRejected. Upload surfaces both as UploadFailed with the kind kept as
// its cause, so the split only steers caller retry policy.
type Kind string

const (
	// KindUnavailable covers transport failures, timeouts, throttling and 5xx answers.
	KindUnavailable Kind = "unavailable"
	// KindRejected covers non-success answers the backend will keep giving.
	KindRejected Kind = "rejected"
	// KindEmptyID is returned by Resolve for an empty identifier.
	KindEmptyID Kind = "empty_id"
)

var (
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrRejected    = &Error{Kind: KindRejected}
	ErrEmptyID     = &Error{Kind: KindEmptyID, Message: "content identifier is empty"}
)

// Error is the normalized failure returned by every Store implementation.
type Error struct {
	Kind       Kind
	Backend    string
	Message    string
	StatusCode int
	Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("content store %s [%s]: %s", e.Backend, e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Underlying }

// Is matches by Kind so callers can write errors.Is(err, ErrUnavailable).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, backend, msg string, status int, underlying error) *Error {
	return &Error{Kind: kind, Backend: backend, Message: msg, StatusCode: status, Underlying: underlying}
}

// ToDomain maps a store failure onto the domain error taxonomy.
func ToDomain(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if !errors.As(err, &se) {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "content store failure")
	}
	switch se.Kind {
	case KindRejected:
		return &dErrors.Error{Code: dErrors.CodeStoreRejected, Message: se.Error(), Err: err}
	case KindEmptyID:
		return &dErrors.Error{Code: dErrors.CodeInvalidInput, Message: se.Message, Err: err}
	default:
		return &dErrors.Error{Code: dErrors.CodeStoreUnavailable, Message: se.Error(), Err: err}
	}
}
