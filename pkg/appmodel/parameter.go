package appmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redbco/redb-apphost/pkg/config"
	"github.com/redbco/redb-apphost/pkg/logger"
)

// ErrMissingParameterValue is returned when a parameter has no value and
// nothing to generate one from.
var ErrMissingParameterValue = errors.New("missing parameter value")

// SecretStore persists generated parameter values between runs.
type SecretStore interface {
	GetSecret(name string) (string, bool, error)
	SetSecret(name, value string) error
}

// ParameterResource is an externally supplied value such as a user name or
// password.
type ParameterResource struct {
	name        string
	annotations Annotations

	Secret  bool
	Default *GenerateParameterDefault

	explicit *string
	config   *config.Config
	secrets  SecretStore
	log      *logger.Logger

	mu       sync.Mutex
	resolved bool
	value    string
}

func (p *ParameterResource) Name() string { return p.name }

func (p *ParameterResource) Annotations() *Annotations { return &p.annotations }

// GetValue resolves the value once: explicit value, then configuration
// "Parameters:<name>", then a previously generated value from the secret
// store, then a freshly generated value that is persisted.
func (p *ParameterResource) GetValue(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return p.value, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	v, err := p.resolve()
	if err != nil {
		return "", err
	}
	p.value = v
	p.resolved = true
	return v, nil
}

func (p *ParameterResource) resolve() (string, error) {
	if p.explicit != nil {
		return *p.explicit, nil
	}

	if p.config != nil {
		if v, ok := p.config.Lookup(config.ParameterKey(p.name)); ok {
			return v, nil
		}
	}

	if p.Default == nil {
		return "", fmt.Errorf("parameter %s: %w", p.name, ErrMissingParameterValue)
	}

	if p.secrets != nil {
		v, ok, err := p.secrets.GetSecret(p.name)
		if err != nil {
			p.warnf("Failed to read stored value for parameter %s: %v", p.name, err)
		} else if ok {
			return v, nil
		}
	}

	v, err := p.Default.Generate()
	if err != nil {
		return "", fmt.Errorf("parameter %s: failed to generate value: %w", p.name, err)
	}

	if p.secrets != nil {
		if err := p.secrets.SetSecret(p.name, v); err != nil {
			p.warnf("Failed to persist generated value for parameter %s: %v", p.name, err)
		}
	}
	return v, nil
}

func (p *ParameterResource) warnf(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Warnf(format, args...)
	}
}

func (p *ParameterResource) ValueExpression() string {
	return "{" + p.name + ".value}"
}
