package server

// Route path constants
const (
	// Platform catalog
	RoutePlatforms     = "/api/platforms"
	RoutePlatformLogin = "/api/{platform}/login"

	// Session routes, all scoped to the caller's session handle
	RouteSession           = "/api/session"
	RouteSessionActive     = "/api/session/active"
	RouteSessionConnection = "/api/session/connections/{id}"
	RouteSessionCache      = "/api/session/cache"
	RouteAuthSession       = "/api/_auth/session"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
