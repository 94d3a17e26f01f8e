// Package oidc is a generic login provider for platforms fronted by an OpenID Connect issuer.
// It exchanges the user's credentials with the resource owner password grant and verifies
// the returned ID token against the issuer's published keys.
package oidc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const environmentPlaceholder = "{{environment}}"

// Config describes one OIDC-backed platform.
type Config struct {
	Platform     platforms.Descriptor
	IssuerURL    string // May contain {{environment}}, e.g. "https://sso.example.com/realms/{{environment}}"
	ClientID     string
	ClientSecret string
	Scopes       []string
}

type claims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Organization      string `json:"organization"`
}

// Provider logs in with the password grant. Issuer discovery is done once per environment.
type Provider struct {
	config Config
	client *http.Client
	clock  clockwork.Clock

	issuers map[string]*gooidc.Provider
	lock    sync.Mutex
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

func New(config Config, options ...Option) (*Provider, error) {
	if config.Platform.Slug == "" || config.IssuerURL == "" || config.ClientID == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[oidc.New] platform slug, issuer and client id are required")
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}
	p := &Provider{
		config:  config,
		client:  &http.Client{Timeout: 30 * time.Second},
		clock:   clockwork.NewRealClock(),
		issuers: make(map[string]*gooidc.Provider),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Slug() string {
	return p.config.Platform.Slug
}

// Issuer resolves the issuer URL for an environment.
func (p *Provider) Issuer(environment string) string {
	return strings.ReplaceAll(p.config.IssuerURL, environmentPlaceholder, environment)
}

func (p *Provider) discover(ctx context.Context, environment string) (*gooidc.Provider, error) {
	issuer := p.Issuer(environment)

	p.lock.Lock()
	defer p.lock.Unlock()
	if provider, ok := p.issuers[issuer]; ok {
		return provider, nil
	}

	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, p.client), issuer)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, providers.Timeout(p.Slug(), err)
		}
		// A missing or broken discovery document means the environment does not exist.
		return nil, providers.EnvironmentUnreachable(p.Slug(), err)
	}
	p.issuers[issuer] = provider
	return provider, nil
}

func (p *Provider) Authenticate(ctx context.Context, creds providers.Credentials) (*providers.Result, error) {
	provider, err := p.discover(ctx, creds.Environment)
	if err != nil {
		return nil, err
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	oauthConfig := oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       p.config.Scopes,
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := oauthConfig.PasswordCredentialsToken(httpCtx, creds.Login, creds.Password)
	if err != nil {
		return nil, p.classifyTokenError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, providers.ContractViolation(p.Slug(), "token response has no id_token", nil)
	}
	verifier := provider.Verifier(&gooidc.Config{ClientID: p.config.ClientID, Now: p.clock.Now})
	idToken, err := verifier.Verify(gooidc.ClientContext(ctx, p.client), rawIDToken)
	if err != nil {
		return nil, providers.ContractViolation(p.Slug(), "id_token verification failed", err)
	}
	var c claims
	if err := idToken.Claims(&c); err != nil {
		return nil, providers.ContractViolation(p.Slug(), "id_token claims are malformed", err)
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		exp := token.Expiry
		expiresAt = &exp
	}
	login := c.PreferredUsername
	if login == "" {
		login = creds.Login
	}

	log.Info().Str("platform", p.Slug()).Str("environment", creds.Environment).Str("subject", idToken.Subject).Msg("oidc authentication successful")

	return providers.Normalize(p.config.Platform, providers.Raw{
		Credentials: creds,
		Token:       token.AccessToken,
		ExpiresAt:   expiresAt,
		User: connections.User{
			ID:          idToken.Subject,
			Login:       login,
			DisplayName: c.Name,
			Email:       c.Email,
			CompanyName: c.Organization,
		},
		Extra: map[string]string{"issuer": idToken.Issuer},
	}, p.clock.Now())
}

func (p *Provider) classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !stderrors.As(err, &retrieveErr) {
		return providers.Classify(p.Slug(), err)
	}
	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	switch {
	case retrieveErr.ErrorCode == "invalid_grant" || status == http.StatusUnauthorized:
		detail := retrieveErr.ErrorDescription
		if detail == "" {
			detail = retrieveErr.ErrorCode
		}
		return providers.InvalidCredentials(p.Slug(), detail)
	case status >= 500:
		return providers.EnvironmentUnreachable(p.Slug(), err)
	default:
		return providers.ContractViolation(p.Slug(), fmt.Sprintf("token endpoint answered %d", status), err)
	}
}
