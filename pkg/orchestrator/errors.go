package orchestrator

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of spec.md §7.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NotFound"
	KindAlreadyExists       ErrorKind = "AlreadyExists"
	KindInvalidArgument     ErrorKind = "InvalidArgument"
	KindCapacityExceeded    ErrorKind = "CapacityExceeded"
	KindBusy                ErrorKind = "Busy"
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindProviderError       ErrorKind = "ProviderError"
	KindRateLimited         ErrorKind = "RateLimited"
	KindTransportUnavailable ErrorKind = "TransportUnavailable"
	KindMediaUnrecoverable  ErrorKind = "MediaUnrecoverable"
	KindCancelled           ErrorKind = "Cancelled"
)

// CoreError carries a taxonomy kind alongside the operation and the
// underlying error, so callers can both errors.Is against a kind sentinel
// and print a human-readable message (spec.md §7).
type CoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Err }

// Is reports whether target is the kind sentinel matching e.Kind, so
// `errors.Is(err, orchestrator.ErrNotFound)` works without exposing Kind.
func (e *CoreError) Is(target error) bool {
	k, ok := target.(*kindSentinel)
	return ok && k.kind == e.Kind
}

type kindSentinel struct{ kind ErrorKind }

func (k *kindSentinel) Error() string { return string(k.kind) }

func newKindSentinel(k ErrorKind) error { return &kindSentinel{kind: k} }

// Kind sentinels for errors.Is matching against CoreError.Kind.
var (
	ErrNotFound            = newKindSentinel(KindNotFound)
	ErrAlreadyExists       = newKindSentinel(KindAlreadyExists)
	ErrInvalidArgument     = newKindSentinel(KindInvalidArgument)
	ErrCapacityExceeded    = newKindSentinel(KindCapacityExceeded)
	ErrBusy                = newKindSentinel(KindBusy)
	ErrProviderUnavailable = newKindSentinel(KindProviderUnavailable)
	ErrProviderError       = newKindSentinel(KindProviderError)
	ErrRateLimited         = newKindSentinel(KindRateLimited)
	ErrTransportUnavailable = newKindSentinel(KindTransportUnavailable)
	ErrMediaUnrecoverable  = newKindSentinel(KindMediaUnrecoverable)
	ErrCancelled           = newKindSentinel(KindCancelled)
)

// NewError wraps err (which may be nil) with a kind and an operation name.
func NewError(kind ErrorKind, op string, err error) *CoreError {
	return &CoreError{Kind: kind, Op: op, Err: err}
}

// Additional sentinel errors carried from the teacher's own error set.
// errLLMNotConfigured and errTTSNotConfigured are wrapped by agent.go;
// errEmptyTranscription and errLowConfidence are declared but not returned
// anywhere.
var (
	errEmptyTranscription = errors.New("transcription returned empty text")
	errLowConfidence      = errors.New("transcript confidence below floor")
	errLLMNotConfigured   = errors.New("no LLM provider configured for this agent")
	errTTSNotConfigured   = errors.New("no TTS provider configured for this agent")
)
