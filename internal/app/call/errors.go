package call

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

var (
	ErrInvalidState   = errors.New("call peer in wrong state")
	ErrMalformedOffer = errors.New("malformed session-initiate")
	ErrUnknownContent = errors.New("unknown content")
	ErrNoSession      = errors.New("session id not assigned")
	ErrCancelled      = errors.New("call cancelled before session start")
)

// Failure is a call-establishment failure and the reason reported for it.
type Failure struct {
	Reason domain.ReasonCode
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("call failed (%s): %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(reason domain.ReasonCode, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

// HangupReason is why the local side ends a call.
type HangupReason int

const (
	HangupNormal HangupReason = iota
	HangupEncryptionRequired
	HangupTimeout
	HangupBusy
)

func (r HangupReason) code() domain.ReasonCode {
	switch r {
	case HangupEncryptionRequired:
		return domain.ReasonSecurityError
	case HangupTimeout:
		return domain.ReasonTimeout
	case HangupBusy:
		return domain.ReasonBusy
	default:
		return domain.ReasonSuccess
	}
}
