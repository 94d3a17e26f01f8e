package config

import "time"

type ProviderConfig interface {
	GetProviderTimeout() time.Duration
	GetWipimo() Wipimo
	GetX14Domain() string
	GetOIDC() (OIDC, bool)
}

type Wipimo struct {
	Domain             string        `yaml:"domain" env:"WIPIMO_DOMAIN" env-default:"wipimo.fr"`
	CurrentUserURL     string        `yaml:"current_user_url" env:"WIPIMO_CURRENT_USER_URL" env-default:"https://wipapi.wipimo.fr/api/Account/Current"`
	Environment        string        `yaml:"environment" env:"WIPIMO_ENVIRONMENT"` // Restricts logins to one environment
	ChromePath         string        `yaml:"chrome_path" env:"CHROME_PATH"`
	BrowserPageTimeout time.Duration `yaml:"page_timeout" env:"WIPIMO_PAGE_TIMEOUT" env-default:"30s"`
}

// OIDC describes an optional extra platform behind an OpenID Connect issuer.
type OIDC struct {
	Slug         string   `yaml:"slug" env:"OIDC_PLATFORM_SLUG"`
	Name         string   `yaml:"name" env:"OIDC_PLATFORM_NAME"`
	Description  string   `yaml:"description" env:"OIDC_PLATFORM_DESCRIPTION"`
	LogoURL      string   `yaml:"logo_url" env:"OIDC_PLATFORM_LOGO"`
	IssuerURL    string   `yaml:"issuer_url" env:"OIDC_ISSUER_URL"`
	ClientID     string   `yaml:"client_id" env:"OIDC_CLIENT_ID"`
	ClientSecret string   `yaml:"-" env:"OIDC_CLIENT_SECRET"`
	Scopes       []string `yaml:"scopes" env:"OIDC_SCOPES" env-separator:","`
}

type Providers struct {
	ProviderTimeout time.Duration `yaml:"timeout" env:"PROVIDER_TIMEOUT" env-default:"60s"`
	Wipimo          Wipimo        `yaml:"wipimo"`
	X14Domain       string        `yaml:"x14_domain" env:"X14_DOMAIN" env-default:"mygercop.com"`
	OIDC            OIDC          `yaml:"oidc"`
}

var _ ProviderConfig = Providers{}

func (p Providers) GetProviderTimeout() time.Duration {
	return p.ProviderTimeout
}

func (p Providers) GetWipimo() Wipimo {
	return p.Wipimo
}

func (p Providers) GetX14Domain() string {
	return p.X14Domain
}

// GetOIDC reports whether an OIDC platform is configured.
func (p Providers) GetOIDC() (OIDC, bool) {
	o := p.OIDC
	return o, o.Slug != "" && o.IssuerURL != "" && o.ClientID != ""
}
