// Package action defines what a fired job does and how its failures are
// classified for the job owner.
package action

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Category string

const (
	ServiceUnavailable Category = "service unavailable"
	TooSoon            Category = "too soon"
	InvalidTarget      Category = "invalid target"
	Unauthorized       Category = "unauthorized"
	Unknown            Category = "unknown"
)

// Handler performs the action of a job for its owner and target.
type Handler interface {
	Execute(ctx context.Context, owner, target string) error
}

type HandlerFunc func(ctx context.Context, owner, target string) error

func (f HandlerFunc) Execute(ctx context.Context, owner, target string) error {
	return f(ctx, owner, target)
}

// Failure is a classified handler error. StatusCode is zero when the
// remote side was never reached.
type Failure struct {
	Category   Category
	StatusCode int
	Err        error
}

func NewStatusFailure(statusCode int, err error) *Failure {
	return &Failure{Category: CategoryOfStatus(statusCode), StatusCode: statusCode, Err: err}
}

func (f *Failure) Error() string {
	msg := string(f.Category)
	if f.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, f.StatusCode)
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func CategoryOfStatus(statusCode int) Category {
	switch statusCode {
	case http.StatusServiceUnavailable:
		return ServiceUnavailable
	case http.StatusTooManyRequests:
		return TooSoon
	case http.StatusBadRequest:
		return InvalidTarget
	case http.StatusForbidden, http.StatusUnauthorized:
		return Unauthorized
	default:
		return Unknown
	}
}

// Classify returns the category of a handler error. Errors that are not a
// Failure are Unknown.
func Classify(err error) Category {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Category
	}
	return Unknown
}

// Message is the text sent to the job owner for a failed run.
func Message(category Category) string {
	switch category {
	case ServiceUnavailable:
		return "The resume could not be updated because HeadHunter is temporarily unavailable."
	case TooSoon:
		return "The resume could not be updated on schedule because the previous update was less than 4 hours ago."
	case InvalidTarget:
		return "The resume could not be updated because it is not valid."
	case Unauthorized:
		return "The resume could not be updated because of an authorization error. Please authorize again with /connect."
	default:
		return "Resume update failed."
	}
}
