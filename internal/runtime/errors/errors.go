package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired       = sterrors.New("viewbridge: configuration is required")
	ErrLoggerRequired       = sterrors.New("viewbridge: logger is required")
	ErrServiceRequired      = sterrors.New("viewbridge: page service is required")
	ErrNodeIDRequired       = sterrors.New("viewbridge: node id is required")
	ErrHostOriginRequired   = sterrors.New("viewbridge: host origin is required")
	ErrWildcardTargetOrigin = sterrors.New("viewbridge: wildcard target origin is not allowed")
	ErrPublisherRequired    = sterrors.New("viewbridge: publisher is required")
	ErrSubscriberRequired   = sterrors.New("viewbridge: subscriber is required")
	ErrTopicRequired        = sterrors.New("viewbridge: topic is required")
	ErrViewExists           = sterrors.New("viewbridge: view is already registered")
	ErrViewNotFound         = sterrors.New("viewbridge: view is not registered")
	ErrViewClosed           = sterrors.New("viewbridge: view bridge is closed")
	ErrRequestTimeout       = sterrors.New("viewbridge: view is not responding")
	ErrShellRequired        = sterrors.New("viewbridge: native shell is required")
	ErrUnknownMessageType   = sterrors.New("viewbridge: unknown message type")
	ErrMalformedChangeSet   = sterrors.New("viewbridge: change set requires added or removed elements")
	ErrInvalidTranslator    = sterrors.New("viewbridge: translator requires a source, targets and exactly one of forward or mapping")
	ErrChannelIDRequired    = sterrors.New("viewbridge: channel id is required")
	ErrSubscriberNil        = sterrors.New("viewbridge: subscriber callback is required")
)

// ConfigValidationError wraps the error returned by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("viewbridge: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
