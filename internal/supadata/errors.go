package supadata

import (
	"errors"
	"fmt"
)

type ErrorType int

const (
	// ErrNoKeys: the credential pool is empty.
	ErrNoKeys ErrorType = iota
	// ErrKeysExhausted: every credential is rate-limited or was tried this cycle.
	ErrKeysExhausted
	// ErrRateLimited: the provider rejected one credential with a rate-limit
	// signal. Retried internally, never surfaces from Fetch.
	ErrRateLimited
	// ErrProvider: non-retryable provider rejection (4xx/5xx without a
	// rate-limit signal).
	ErrProvider
	// ErrInvalidPayload: the provider responded but the payload could not be
	// normalized. Not credential-specific, never retried.
	ErrInvalidPayload
	// ErrJobTimeout: the async job did not complete within the poll ceiling.
	ErrJobTimeout
	// ErrJobFailed: the provider reported the async job as failed.
	ErrJobFailed
	// ErrJobPoll: polling the job-status endpoint itself failed. The job is
	// bound to the credential that created it, so no failover happens here.
	ErrJobPoll
	// ErrTransport: the request never produced a provider response. The
	// credential keeps its flags but the cycle moves on to the next one.
	ErrTransport
)

func (t ErrorType) String() string {
	switch t {
	case ErrNoKeys:
		return "NoKeysConfigured"
	case ErrKeysExhausted:
		return "AllKeysExhausted"
	case ErrRateLimited:
		return "RateLimited"
	case ErrProvider:
		return "ProviderError"
	case ErrInvalidPayload:
		return "InvalidTranscriptPayload"
	case ErrJobTimeout:
		return "JobTimeout"
	case ErrJobFailed:
		return "JobFailed"
	case ErrJobPoll:
		return "JobPollError"
	case ErrTransport:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// FetchError is the error surfaced by the transcript fetch path.
type FetchError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func newError(errorType ErrorType, message string) *FetchError {
	return &FetchError{Type: errorType, Message: message}
}

func newErrorWithCause(errorType ErrorType, message string, cause error) *FetchError {
	return &FetchError{Type: errorType, Message: message, Cause: cause}
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s | cause: %v", msg, e.Cause)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// AsFetchError unwraps err into a *FetchError when the fetch path produced it.
func AsFetchError(err error) (*FetchError, bool) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr, true
	}
	return nil, false
}

// IsFetchErrorType reports whether err is a FetchError of the given type.
func IsFetchErrorType(err error, errorType ErrorType) bool {
	fetchErr, ok := AsFetchError(err)
	return ok && fetchErr.Type == errorType
}
