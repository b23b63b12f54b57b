package audio

import (
	"errors"
	"strings"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceNotFound    = errors.New("no microphone found")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindDeviceNotFound
	KindDeviceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindDeviceUnavailable:
		return "device_unavailable"
	default:
		return "unknown"
	}
}

// AcquireError is returned when a microphone stream cannot be opened.
type AcquireError struct {
	Kind Kind
	Err  error
}

func (e *AcquireError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *AcquireError) Unwrap() error { return e.Err }

func (e *AcquireError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Kind == KindPermissionDenied
	case ErrDeviceNotFound:
		return e.Kind == KindDeviceNotFound
	case ErrDeviceUnavailable:
		return e.Kind == KindDeviceUnavailable
	}
	return false
}

var classifyRules = []struct {
	kind     Kind
	keywords []string
}{
	{KindPermissionDenied, []string{"permission", "access denied", "not allowed", "notallowed", "unauthorized"}},
	{KindDeviceNotFound, []string{"no such entity", "not found", "no device", "does not exist", "no capture devices"}},
	{KindDeviceUnavailable, []string{"busy", "in use", "failed to allocate", "not readable", "notreadable", "unavailable", "aborted", "connection refused"}},
}

// Classify maps a backend error onto the acquisition taxonomy. Errors that
// already carry a kind are returned unchanged; nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *AcquireError
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &AcquireError{Kind: KindPermissionDenied, Err: err}
	case errors.Is(err, ErrDeviceNotFound):
		return &AcquireError{Kind: KindDeviceNotFound, Err: err}
	case errors.Is(err, ErrDeviceUnavailable):
		return &AcquireError{Kind: KindDeviceUnavailable, Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return &AcquireError{Kind: rule.kind, Err: err}
			}
		}
	}
	return &AcquireError{Kind: KindUnknown, Err: err}
}

// KindOf reports the acquisition kind of err, KindUnknown when it has none.
func KindOf(err error) Kind {
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
