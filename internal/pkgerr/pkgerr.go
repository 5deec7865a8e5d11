// Package pkgerr holds the single last-error slot shared by all builtins.
package pkgerr

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// LastError is overwritten by every failing operation.
type LastError struct {
	mu      sync.Mutex
	message string
	details string
}

// Set stores message and details verbatim.
func (e *LastError) Set(message, details string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.message = message
	e.details = details
}

// SetError formats err the way LastError reports it and stores it.
func (e *LastError) SetError(err error) {
	msg, details := AsString(err)
	e.Set(msg, details)
}

// SetWithPrefix stores err prefixed by context, e.g. a repository alias.
func (e *LastError) SetWithPrefix(prefix string, err error) {
	msg, details := AsString(err)
	e.Set(prefix+": "+msg, details)
}

func (e *LastError) Message() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.message
}

func (e *LastError) Details() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.details
}

// AsString splits err into the user facing message and the root cause.
// Details are empty when the error carries no wrapped cause.
func AsString(err error) (message, details string) {
	if err == nil {
		return "", ""
	}
	message = err.Error()
	cause := errors.Cause(err)
	if cause != nil && cause != err {
		details = cause.Error()
		message = strings.TrimSuffix(message, ": "+details)
	}
	return message, details
}
