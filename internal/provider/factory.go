package provider

import (
	"strings"

	"go.uber.org/zap"
)

// Wrapper decorates a freshly built adapter, e.g. with a circuit breaker.
type Wrapper func(p Provider) Provider

// Factory builds adapters on demand. It keeps no per-app state, so one
// Factory is shared by every worker.
type Factory struct {
	gupshup GupshupConfig
	wrap    Wrapper
	logger  *zap.Logger
}

// NewFactory returns a factory. wrap may be nil.
func NewFactory(gupshup GupshupConfig, wrap Wrapper, logger *zap.Logger) *Factory {
	return &Factory{
		gupshup: gupshup,
		wrap:    wrap,
		logger:  logger,
	}
}

// New builds the adapter for providerName bound to creds.
func (f *Factory) New(providerName string, creds Credentials) (Provider, error) {
	var p Provider
	switch strings.ToLower(providerName) {
	case NameGupshup:
		p = NewGupshup(f.gupshup, creds, f.logger)
	default:
		return nil, unknownProvider(providerName)
	}

	if f.wrap != nil {
		p = f.wrap(p)
	}
	return p, nil
}
