package config

import "time"

const defaultSessionSecret = "dev-only-session-secret-change-me"

type SessionConfig interface {
	GetSessionSecret() string
	GetCookieName() string
	GetSessionMaxAge() time.Duration
	GetRedisURL() string
	GetTokenKey() string
	GetCacheDir() string
	GetLoginRateLimit() (perMinute float64, burst int)
	GetTrustProxy() bool
}

type Session struct {
	Secret     string        `yaml:"-" env:"SESSION_SECRET" env-default:"dev-only-session-secret-change-me"`
	CookieName string        `yaml:"cookie_name" env:"SESSION_COOKIE" env-default:"connection_hub_session"`
	MaxAge     time.Duration `yaml:"max_age" env:"SESSION_MAX_AGE" env-default:"168h"`
	RedisURL   string        `yaml:"-" env:"REDIS_URL"` // Empty means in-memory sessions
	TokenKey   string        `yaml:"-" env:"TOKEN_ENCRYPTION_KEY"`
	CacheDir   string        `yaml:"cache_dir" env:"CACHE_DIR" env-default:"cache"` // Relative to the data folder unless absolute
	LoginRate  float64       `yaml:"login_rate_per_minute" env:"LOGIN_RATE_PER_MINUTE" env-default:"10"`
	LoginBurst int           `yaml:"login_burst" env:"LOGIN_BURST" env-default:"5"`
	TrustProxy bool          `yaml:"trust_proxy" env:"TRUST_PROXY" env-default:"false"` // Read the client address from X-Forwarded-For
}

var _ SessionConfig = Session{}

func (s Session) GetSessionSecret() string {
	return s.Secret
}

func (s Session) GetCookieName() string {
	return s.CookieName
}

func (s Session) GetSessionMaxAge() time.Duration {
	return s.MaxAge
}

func (s Session) GetRedisURL() string {
	return s.RedisURL
}

func (s Session) GetTokenKey() string {
	return s.TokenKey
}

func (s Session) GetCacheDir() string {
	return s.CacheDir
}

func (s Session) GetLoginRateLimit() (float64, int) {
	return s.LoginRate, s.LoginBurst
}

func (s Session) GetTrustProxy() bool {
	return s.TrustProxy
}
