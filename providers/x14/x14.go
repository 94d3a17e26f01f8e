// Package x14 authenticates against the X14 REST API.
package x14

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rentcopilot/connection-hub/connections"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rs/zerolog/log"
)

const (
	// ExtraAgencyID and ExtraAgencyName are carried opaquely on the connection.
	ExtraAgencyID   = "agencyId"
	ExtraAgencyName = "agencyName"

	maxResponseBytes = 1 << 20
)

type authStorage struct {
	ID         string `json:"id"`
	Name       string `json:"nom"`
	Login      string `json:"login"`
	Expiration int64  `json:"expiration"` // unix seconds
}

type agency struct {
	ID           string `json:"id"`
	Name         string `json:"nom"`
	ComputedName string `json:"computedName"`
}

type loginResponse struct {
	Authentication       bool   `json:"authentication"`
	AuthenticationResult string `json:"authenticationResult"`
	AuthenticationToken  string `json:"authenticationToken"`
	Data                 *struct {
		AuthStorage *authStorage `json:"AuthStorage"`
		Agency      *agency      `json:"Agence"`
	} `json:"data"`
}

// Provider logs in with a direct POST to https://<environment>.<domain>/authenticate.
type Provider struct {
	platform platforms.Descriptor
	client   *http.Client
	baseURL  func(environment string) string
	clock    clockwork.Clock
}

type Option func(*Provider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithBaseURL overrides how an environment maps to the API root (primarily for testing).
func WithBaseURL(f func(environment string) string) Option {
	return func(p *Provider) { p.baseURL = f }
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// New creates an X14 provider. domain is the API domain, e.g. "mygercop.com".
func New(domain string, options ...Option) *Provider {
	p := &Provider{
		platform: platforms.X14.Descriptor,
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL: func(environment string) string {
			return fmt.Sprintf("https://%s.%s", environment, domain)
		},
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *Provider) Slug() string {
	return p.platform.Slug
}

func (p *Provider) Authenticate(ctx context.Context, creds providers.Credentials) (*providers.Result, error) {
	loginURL := p.baseURL(creds.Environment) + "/authenticate"
	log.Debug().Str("platform", p.Slug()).Str("environment", creds.Environment).Str("login", creds.Login).Msg("x14 authentication attempt")

	body, err := json.Marshal(map[string]string{"login": creds.Login, "password": creds.Password})
	if err != nil {
		return nil, providers.Unknown(p.Slug(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(body))
	if err != nil {
		return nil, providers.EnvironmentUnreachable(p.Slug(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, providers.Classify(p.Slug(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, providers.InvalidCredentials(p.Slug(), resp.Status)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500:
		return nil, providers.EnvironmentUnreachable(p.Slug(), fmt.Errorf("x14 api error: %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, providers.ContractViolation(p.Slug(), "unexpected status "+resp.Status, nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, providers.Classify(p.Slug(), err)
	}
	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, providers.ContractViolation(p.Slug(), "response is not valid JSON", err)
	}

	if !lr.Authentication || lr.AuthenticationToken == "" {
		detail := lr.AuthenticationResult
		if detail == "" {
			detail = "invalid X14 credentials"
		}
		return nil, providers.InvalidCredentials(p.Slug(), detail)
	}
	if lr.Data == nil || lr.Data.AuthStorage == nil || lr.Data.Agency == nil {
		return nil, providers.ContractViolation(p.Slug(), "missing AuthStorage or Agence", nil)
	}

	storage, ag := lr.Data.AuthStorage, lr.Data.Agency
	var expiresAt *time.Time
	if storage.Expiration > 0 {
		exp := time.Unix(storage.Expiration, 0).UTC()
		expiresAt = &exp
	}

	log.Info().Str("platform", p.Slug()).Str("environment", creds.Environment).Str("user_id", storage.ID).Msg("x14 authentication successful")

	return providers.Normalize(p.platform, providers.Raw{
		Credentials: creds,
		Token:       lr.AuthenticationToken,
		ExpiresAt:   expiresAt,
		User: connections.User{
			ID:          storage.ID,
			Login:       storage.Login,
			DisplayName: storage.Name,
			CompanyName: ag.Name,
		},
		Extra: map[string]string{
			ExtraAgencyID:   ag.ID,
			ExtraAgencyName: ag.Name,
		},
	}, p.clock.Now())
}
