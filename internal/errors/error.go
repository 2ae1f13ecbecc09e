package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrMalformedFullpath    = errors.New("malformed fullpath")
	ErrUnsupportedPolicy    = errors.New("unsupported storage policy")
	ErrPlacementExhausted   = errors.New("no valid placement left")
	ErrUnrecoverableContent = errors.New("unrecoverable content")
	ErrECDriver             = errors.New("erasure code driver error")
	ErrContentNotFound      = errors.New("content not found")
	ErrContainerNotFound    = errors.New("container not found")
	ErrFrozenContainer      = errors.New("container is frozen")
	ErrVerifyFailed         = errors.New("chunk verification failed")
	ErrConflict             = errors.New("chunk list changed concurrently")
	ErrContentExists        = errors.New("content already exists")
	ErrChunkNotFound        = errors.New("chunk not found")
	ErrChecksumMismatch     = errors.New("chunk checksum mismatch")
	ErrMalformedHeaders     = errors.New("malformed chunk headers")
	ErrTooManyLocations     = errors.New("too many locations already known")
	ErrOrphanChunk          = errors.New("chunk is not referenced by content")
	ErrInvalidTask          = errors.New("invalid rebuild task")
)

// KindError is an error belonging to one or more sentinel kinds at once.
// errors.Is matches every kind as well as the cause.
type KindError struct {
	Kinds []error
	Msg   string
	Err   error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() []error {
	errs := make([]error, 0, len(e.Kinds)+1)
	errs = append(errs, e.Kinds...)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewKindError builds a KindError; kinds are listed from most to least specific.
func NewKindError(msg string, cause error, kinds ...error) error {
	return &KindError{Kinds: kinds, Msg: msg, Err: cause}
}

// Unrecoverable reports that not enough healthy copies or fragments exist.
func Unrecoverable(format string, args ...interface{}) error {
	return NewKindError(fmt.Sprintf(format, args...), nil, ErrUnrecoverableContent)
}

// VerifyFailed is both ErrVerifyFailed and ErrUnrecoverableContent: bytes that
// fail verification count as a missing source.
func VerifyFailed(format string, args ...interface{}) error {
	return NewKindError(fmt.Sprintf(format, args...), nil, ErrVerifyFailed, ErrUnrecoverableContent)
}

// ECDriverError is a decode failure on the erasure-coded path. It is a
// specialization of ErrUnrecoverableContent.
type ECDriverError struct {
	Reason string
	// Failures maps a fragment index to why it could not be used.
	Failures map[int]error
}

func (e *ECDriverError) Error() string {
	if len(e.Failures) == 0 {
		return "ec driver: " + e.Reason
	}
	idxs := make([]int, 0, len(e.Failures))
	for idx := range e.Failures {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	parts := make([]string, 0, len(idxs))
	for _, idx := range idxs {
		parts = append(parts, fmt.Sprintf("#%d: %v", idx, e.Failures[idx]))
	}
	return fmt.Sprintf("ec driver: %s (%s)", e.Reason, strings.Join(parts, "; "))
}

func (e *ECDriverError) Unwrap() []error {
	return []error{ErrECDriver, ErrUnrecoverableContent}
}
