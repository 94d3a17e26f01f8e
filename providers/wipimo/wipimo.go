// Package wipimo authenticates against Wipimo by relaying credentials through its
// web login page, then resolves the account behind the captured token.
package wipimo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rs/zerolog/log"
)

const (
	Slug = "wipimo"

	// ExtraClientDomain is the Wipimo customer domain, carried opaquely on the connection.
	ExtraClientDomain = "cliDomain"

	// Wipimo tokens carry no expiry we can read reliably.
	defaultTokenTTL  = 24 * time.Hour
	maxResponseBytes = 1 << 20
)

type apiUser struct {
	ID        int      `json:"Id"`
	UserName  string   `json:"UserName"`
	Email     string   `json:"Email"`
	Pseudo    string   `json:"Pseudo"`
	Company   *string  `json:"Societe"`
	CliDomain string   `json:"cliDomain"`
	Roles     []string `json:"Roles"`
}

// Config holds the Wipimo endpoints.
type Config struct {
	Domain             string // e.g. "wipimo.fr"
	CurrentUserURL     string // e.g. "https://wipapi.wipimo.fr/api/Account/Current"
	AllowedEnvironment string // When set, only this environment may be used
}

// Provider is the browser-automation backed Wipimo login provider.
type Provider struct {
	platform platforms.Descriptor
	config   Config
	capturer TokenCapturer
	client   *http.Client
	clock    clockwork.Clock
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// New creates a Wipimo provider.
func New(config Config, capturer TokenCapturer, options ...Option) *Provider {
	p := &Provider{
		platform: platforms.Wipimo.Descriptor,
		config:   config,
		capturer: capturer,
		client:   &http.Client{Timeout: 30 * time.Second},
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *Provider) Slug() string {
	return p.platform.Slug
}

// LoginURL maps an environment to its login page. Numeric environments are ad-hoc
// deployments and live under "adhoc-<n>".
func (p *Provider) LoginURL(environment string) string {
	host := environment
	if _, err := strconv.Atoi(environment); err == nil {
		host = "adhoc-" + environment
	}
	return fmt.Sprintf("https://%s.%s/Account/Login", host, p.config.Domain)
}

func (p *Provider) Authenticate(ctx context.Context, creds providers.Credentials) (*providers.Result, error) {
	if p.config.AllowedEnvironment != "" && creds.Environment != p.config.AllowedEnvironment {
		return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "environment must be %s", p.config.AllowedEnvironment)
	}

	loginURL := p.LoginURL(creds.Environment)
	log.Debug().Str("platform", p.Slug()).Str("environment", creds.Environment).Str("url", loginURL).Msg("wipimo browser authentication")

	token, err := p.capturer.CaptureToken(ctx, loginURL, creds.Login, creds.Password)
	if err != nil {
		return nil, providers.Classify(p.Slug(), err)
	}

	user, err := p.currentUser(ctx, token)
	if err != nil {
		return nil, err
	}

	company := user.CliDomain
	if user.Company != nil && *user.Company != "" {
		company = *user.Company
	}
	log.Info().Str("platform", p.Slug()).Str("environment", creds.Environment).Int("user_id", user.ID).Msg("wipimo authentication successful")

	return providers.Normalize(p.platform, providers.Raw{
		Credentials: creds,
		Token:       token,
		DefaultTTL:  defaultTokenTTL,
		User: connections.User{
			ID:          strconv.Itoa(user.ID),
			Login:       user.Pseudo,
			DisplayName: user.UserName,
			Email:       user.Email,
			CompanyName: company,
		},
		Extra: map[string]string{ExtraClientDomain: user.CliDomain},
	}, p.clock.Now())
}

func (p *Provider) currentUser(ctx context.Context, token string) (*apiUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.CurrentUserURL, nil)
	if err != nil {
		return nil, providers.Unknown(p.Slug(), err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, providers.Classify(p.Slug(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, providers.InvalidCredentials(p.Slug(), "account lookup rejected the token")
	case resp.StatusCode >= 500:
		return nil, providers.EnvironmentUnreachable(p.Slug(), fmt.Errorf("account lookup: %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, providers.ContractViolation(p.Slug(), "account lookup returned "+resp.Status, nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, providers.Classify(p.Slug(), err)
	}
	var user apiUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, providers.ContractViolation(p.Slug(), "account lookup is not valid JSON", err)
	}
	if user.CliDomain == "" || user.Pseudo == "" {
		return nil, providers.ContractViolation(p.Slug(), "account lookup is missing cliDomain or Pseudo", nil)
	}
	return &user, nil
}
