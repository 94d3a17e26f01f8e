package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RoutePlatforms, ChainMiddleware(s.PlatformsHandler(), s.APIMiddleware(s.PublicCacheMiddleware)...))

	// LOGIN creates the session handle on first use
	s.RegisterRouteHandler("POST "+RoutePlatformLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware(s.NoStoreMiddleware, s.EnsureSessionHandle)...))
	s.RegisterRouteHandler("DELETE "+RouteAuthSession, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.NoStoreMiddleware)...))

	// Session routes reject callers without a session handle
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.SessionMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionActive, ChainMiddleware(s.ActiveConnectionHandler(), s.SessionMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionActive, ChainMiddleware(s.SwitchActiveHandler(), s.SessionMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteSessionConnection, ChainMiddleware(s.RemoveConnectionHandler(), s.SessionMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionCache, ChainMiddleware(s.CacheHandler(), s.SessionMiddleware()...))

	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(notFound, s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
}

// notFound only runs for preflight requests that CorsMiddleware did not answer.
func notFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}
