package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/provider"
	"github.com/lalithlochan/templar/internal/template"
)

// ProtectedProvider guards a provider adapter with its app's breaker. Only
// retryable failures count against the breaker; a rejected template says
// nothing about the provider's health.
type ProtectedProvider struct {
	inner   provider.Provider
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedProvider(inner provider.Provider, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedProvider {
	return &ProtectedProvider{
		inner:   inner,
		breaker: breaker,
		logger:  logger,
	}
}

// Wrapper plugs the registry into provider.Factory.
func (r *Registry) Wrapper() provider.Wrapper {
	return func(p provider.Provider) provider.Provider {
		return NewProtectedProvider(p, r.For(p.AppID()), r.logger)
	}
}

func (p *ProtectedProvider) Name() string  { return p.inner.Name() }
func (p *ProtectedProvider) AppID() string { return p.inner.AppID() }

// Breaker returns the underlying breaker.
func (p *ProtectedProvider) Breaker() *CircuitBreaker { return p.breaker }

func (p *ProtectedProvider) guard(op string, call func() (*provider.Result, error)) (*provider.Result, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("provider call short-circuited",
			zap.String("breaker", p.breaker.Name()),
			zap.String("op", op),
			zap.String("state", p.breaker.GetState().String()),
		)
		return &provider.Result{
			StatusCode: 0,
			Message:    fmt.Sprintf("%v: provider app %s unavailable", ErrCircuitOpen, p.breaker.Name()),
			Retryable:  true,
			Code:       apperr.CodeTransport,
		}, nil
	}

	settled := false
	defer func() {
		// Internal faults and panics are ours, not the provider's.
		if !settled {
			p.breaker.Release()
		}
	}()

	res, err := call()
	if err != nil {
		return res, err
	}
	settled = true
	switch {
	case res.OK:
		p.breaker.RecordSuccess()
	case res.Retryable:
		p.breaker.RecordFailure()
	default:
		p.breaker.RecordSuccess()
	}
	return res, err
}

func (p *ProtectedProvider) SubmitTemplate(ctx context.Context, t *template.Template) (*provider.Result, error) {
	return p.guard("submit", func() (*provider.Result, error) { return p.inner.SubmitTemplate(ctx, t) })
}

func (p *ProtectedProvider) UpdateTemplate(ctx context.Context, t *template.Template) (*provider.Result, error) {
	return p.guard("update", func() (*provider.Result, error) { return p.inner.UpdateTemplate(ctx, t) })
}

func (p *ProtectedProvider) DeleteTemplate(ctx context.Context, t *template.Template) (*provider.Result, error) {
	return p.guard("delete", func() (*provider.Result, error) { return p.inner.DeleteTemplate(ctx, t) })
}

func (p *ProtectedProvider) GetTemplates(ctx context.Context) (*provider.Result, error) {
	return p.guard("list", func() (*provider.Result, error) { return p.inner.GetTemplates(ctx) })
}
