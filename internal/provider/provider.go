// Package provider adapts templates to a WhatsApp Business Solution Provider.
// Provider-level failures (4xx/5xx, network errors) come back as a failed
// Result, never as a Go error; the error return is kept for internal faults.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/template"
)

// Provider is the per-app adapter used by the task orchestrator.
type Provider interface {
	Name() string
	AppID() string
	SubmitTemplate(ctx context.Context, t *template.Template) (*Result, error)
	UpdateTemplate(ctx context.Context, t *template.Template) (*Result, error)
	DeleteTemplate(ctx context.Context, t *template.Template) (*Result, error)
	GetTemplates(ctx context.Context) (*Result, error)
}

// Credentials identify one provider app instance.
type Credentials struct {
	AppID string
	Token string
}

// Result is the outcome of one provider operation.
type Result struct {
	OK         bool
	StatusCode int // 0 for network-level failures
	Message    string
	Retryable  bool
	Code       apperr.Code // failure class, empty on success

	Body        map[string]any
	Template    template.Remote   // submit/update: the "template" object
	Templates   []template.Remote // list
	MediaHandle string            // media handle used for a submission, if any
}

// Err converts a failed result into a classified error. It returns nil for success.
func (r *Result) Err() error {
	if r == nil || r.OK {
		return nil
	}
	switch r.Code {
	case apperr.CodeTransport:
		e := apperr.Transport(r.StatusCode, r.Message)
		e.Retryable = r.Retryable
		return e
	case apperr.CodeData:
		e := apperr.Data(r.Message, nil)
		e.StatusCode = r.StatusCode
		return e
	default:
		return apperr.Rejected(r.StatusCode, r.Message)
	}
}

func success(status int, body map[string]any) *Result {
	return &Result{OK: true, StatusCode: status, Body: body}
}

func transportFailure(status int, message string) *Result {
	return &Result{StatusCode: status, Message: message, Retryable: true, Code: apperr.CodeTransport}
}

func rejection(status int, message string, body map[string]any) *Result {
	return &Result{StatusCode: status, Message: message, Code: apperr.CodeRejected, Body: body}
}

func dataFault(status int, message string) *Result {
	return &Result{StatusCode: status, Message: message, Code: apperr.CodeData}
}

// ErrUnknownProvider is returned by the factory for names it cannot build.
var ErrUnknownProvider = errors.New("unknown provider")

func unknownProvider(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}
