package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/cache"
	"github.com/rentcopilot/connection-hub/internal/config"
	"github.com/rentcopilot/connection-hub/internal/crypto"
	"github.com/rentcopilot/connection-hub/internal/logging"
	"github.com/rentcopilot/connection-hub/manager"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rentcopilot/connection-hub/providers/oidc"
	"github.com/rentcopilot/connection-hub/providers/wipimo"
	"github.com/rentcopilot/connection-hub/providers/x14"
	"github.com/rentcopilot/connection-hub/server"
	"github.com/rentcopilot/connection-hub/sessions"
	"github.com/rentcopilot/connection-hub/sessions/redisrepo"
	"github.com/rentcopilot/connection-hub/sessions/repofake"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caches := cache.NewRegistry(cache.FileMediumFactory(cacheDir(c)))
	store, closeStore, err := newStore(ctx, c, caches)
	if err != nil {
		return err
	}
	defer closeStore()

	catalog, registry, err := newProviders(c)
	if err != nil {
		return err
	}
	m := manager.New(catalog, registry, store, caches, manager.WithProviderTimeout(c.GetProviderTimeout()))

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv) }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	return shutdown(srv)
}

// newStore picks Redis when configured. Changes then reach the caches through pub/sub, so
// every replica sees them. Without Redis the sessions live in this process only.
func newStore(ctx context.Context, c config.Config, caches *cache.Registry) (*sessions.Store, func(), error) {
	if c.GetRedisURL() == "" {
		log.Warn().Msg("REDIS_URL not set, sessions are kept in memory")
		repo := repofake.NewFakeSessionRepo()
		return sessions.NewStore(repo, sessions.WithNotifier(sessions.NewBroadcaster(caches))), func() {}, nil
	}

	sealer, err := crypto.New(c.GetTokenKey())
	if err != nil {
		return nil, nil, errors.Wrap(err, "[main.newStore] token encryption key")
	}
	if c.GetTokenKey() == "" {
		log.Warn().Msg("TOKEN_ENCRYPTION_KEY not set, tokens are stored unencrypted")
	}

	rdb, err := redisrepo.Connect(ctx, c.GetRedisURL())
	if err != nil {
		return nil, nil, err
	}
	repo := redisrepo.New(rdb, redisrepo.WithTTL(c.GetSessionMaxAge()), redisrepo.WithCrypto(sealer))
	sub, err := redisrepo.Subscribe(ctx, rdb, repo, caches)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	closeFn := func() {
		sub.Close()
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	return sessions.NewStore(repo, sessions.WithNotifier(redisrepo.NewPublisher(rdb))), closeFn, nil
}

func newProviders(c config.Config) (*platforms.StaticCatalog, *providers.Registry, error) {
	w := c.GetWipimo()
	capturer := wipimo.NewChromeCapturer(w.ChromePath, w.BrowserPageTimeout)

	catalog := platforms.NewStaticCatalog(platforms.Wipimo, platforms.X14)
	registry := providers.NewRegistry(
		wipimo.New(wipimo.Config{
			Domain:             w.Domain,
			CurrentUserURL:     w.CurrentUserURL,
			AllowedEnvironment: w.Environment,
		}, capturer),
		x14.New(c.GetX14Domain()),
	)

	if o, ok := c.GetOIDC(); ok {
		platform := platforms.Platform{
			Descriptor: platforms.Descriptor{Slug: o.Slug, Name: o.Name, Description: o.Description},
			AuthFlow:   platforms.AuthFlowOAuth,
			LogoURL:    o.LogoURL,
		}
		p, err := oidc.New(oidc.Config{
			Platform:     platform.Descriptor,
			IssuerURL:    o.IssuerURL,
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Scopes:       o.Scopes,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := catalog.Register(platform); err != nil {
			return nil, nil, err
		}
		registry.Register(p)
		log.Info().Str("platform", o.Slug).Str("issuer", o.IssuerURL).Msg("oidc platform enabled")
	}
	return catalog, registry, nil
}

func cacheDir(c config.Config) string {
	if filepath.IsAbs(c.GetCacheDir()) {
		return c.GetCacheDir()
	}
	return filepath.Join(c.GetDataFolder(), c.GetCacheDir())
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
