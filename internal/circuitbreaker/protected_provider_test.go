package circuitbreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/provider"
	"github.com/lalithlochan/templar/internal/template"
)

type stubProvider struct {
	result *provider.Result
	err    error
	panics bool
	calls  int
}

func (s *stubProvider) respond() (*provider.Result, error) {
	s.calls++
	if s.panics {
		panic("adapter bug")
	}
	return s.result, s.err
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) AppID() string { return "app-1" }

func (s *stubProvider) SubmitTemplate(context.Context, *template.Template) (*provider.Result, error) {
	return s.respond()
}

func (s *stubProvider) UpdateTemplate(context.Context, *template.Template) (*provider.Result, error) {
	return s.respond()
}

func (s *stubProvider) DeleteTemplate(context.Context, *template.Template) (*provider.Result, error) {
	return s.respond()
}

func (s *stubProvider) GetTemplates(context.Context) (*provider.Result, error) {
	return s.respond()
}

var (
	okResult        = &provider.Result{OK: true, StatusCode: 200}
	transientResult = &provider.Result{StatusCode: 503, Retryable: true, Code: apperr.CodeTransport}
	rejectedResult  = &provider.Result{StatusCode: 400, Code: apperr.CodeRejected, Message: "bad template"}
)

func TestProtectedProvider_OpensOnTransientFailures(t *testing.T) {
	stub := &stubProvider{result: transientResult}
	cb, _ := newTestBreaker(Config{Name: "app-1", MaxFailures: 2})
	p := NewProtectedProvider(stub, cb, zap.NewNop())
	tpl := template.New("org", "app-1", "promo", "en", template.TypeText)

	for i := 0; i < 2; i++ {
		_, err := p.SubmitTemplate(context.Background(), tpl)
		require.NoError(t, err)
	}
	require.Equal(t, StateOpen, cb.GetState())

	res, err := p.SubmitTemplate(context.Background(), tpl)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls, "open breaker must not reach the provider")
	assert.False(t, res.OK)
	assert.True(t, res.Retryable)
	assert.Equal(t, 0, res.StatusCode)
	assert.Contains(t, res.Message, "circuit breaker is open")
}

func TestProtectedProvider_RejectionsDoNotTrip(t *testing.T) {
	stub := &stubProvider{result: rejectedResult}
	cb, _ := newTestBreaker(Config{Name: "app-1", MaxFailures: 1})
	p := NewProtectedProvider(stub, cb, zap.NewNop())

	for i := 0; i < 5; i++ {
		res, err := p.DeleteTemplate(context.Background(), &template.Template{})
		require.NoError(t, err)
		assert.Equal(t, "bad template", res.Message)
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 5, stub.calls)
}

func TestProtectedProvider_SuccessCloses(t *testing.T) {
	stub := &stubProvider{result: transientResult}
	cb, clock := newTestBreaker(Config{Name: "app-1", MaxFailures: 1})
	p := NewProtectedProvider(stub, cb, zap.NewNop())

	_, _ = p.GetTemplates(context.Background())
	require.Equal(t, StateOpen, cb.GetState())

	clock.advance(cb.config.RecoveryTimeout)
	stub.result = okResult
	res, err := p.GetTemplates(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestRegistry_Wrapper(t *testing.T) {
	r := NewRegistry(DefaultConfig(""), zap.NewNop())
	wrapped := r.Wrapper()(&stubProvider{result: okResult})

	pp, ok := wrapped.(*ProtectedProvider)
	require.True(t, ok)
	assert.Same(t, r.For("app-1"), pp.Breaker())
	assert.Equal(t, "stub", wrapped.Name())
}

func TestProtectedProvider_InternalErrorFreesProbe(t *testing.T) {
	stub := &stubProvider{result: transientResult}
	cb, clock := newTestBreaker(Config{Name: "app-1", MaxFailures: 1})
	p := NewProtectedProvider(stub, cb, zap.NewNop())
	tpl := template.New("org", "app-1", "promo", "en", template.TypeText)

	_, _ = p.SubmitTemplate(context.Background(), tpl)
	require.Equal(t, StateOpen, cb.GetState())

	clock.advance(cb.config.RecoveryTimeout)
	stub.result, stub.err = nil, errors.New("internal fault")
	_, err := p.SubmitTemplate(context.Background(), tpl)
	require.Error(t, err)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	stub.result, stub.err = okResult, nil
	res, err := p.SubmitTemplate(context.Background(), tpl)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 3, stub.calls)
}

func TestProtectedProvider_PanicFreesProbe(t *testing.T) {
	stub := &stubProvider{result: transientResult}
	cb, clock := newTestBreaker(Config{Name: "app-1", MaxFailures: 1})
	p := NewProtectedProvider(stub, cb, zap.NewNop())

	_, _ = p.GetTemplates(context.Background())
	clock.advance(cb.config.RecoveryTimeout)

	stub.panics = true
	assert.Panics(t, func() { _, _ = p.GetTemplates(context.Background()) })
	assert.True(t, cb.Allow(), "probe slot must be free again")
}
