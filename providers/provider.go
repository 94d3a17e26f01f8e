package providers

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
)

// Credentials are what a user types into a platform login form.
type Credentials struct {
	Environment string `json:"environment"`
	Login       string `json:"login"`
	Password    string `json:"password"`
}

// Validate checks that every field is present. The password is never trimmed.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Environment) == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "environment is required")
	}
	if strings.TrimSpace(c.Login) == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "login is required")
	}
	if c.Password == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "password is required")
	}
	return nil
}

// Result is a successful, normalized login.
type Result struct {
	Connection connections.Connection
	User       connections.User
}

// LoginProvider authenticates against one external platform.
// Failures are returned as *Failure. Implementations must not retry.
type LoginProvider interface {
	Slug() string
	Authenticate(ctx context.Context, creds Credentials) (*Result, error)
}

// Registry maps platform slugs to their login provider.
type Registry struct {
	providers map[string]LoginProvider
	lock      sync.RWMutex
}

func NewRegistry(providers ...LoginProvider) *Registry {
	r := &Registry{providers: make(map[string]LoginProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Slug()] = p
	}
	return r
}

func (r *Registry) Register(p LoginProvider) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.providers[p.Slug()] = p
}

func (r *Registry) Get(slug string) (LoginProvider, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.providers[slug]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrProviderMissing, slug)
	}
	return p, nil
}
