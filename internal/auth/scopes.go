package auth

// Known OAuth scopes used by the route service.
const (
	ScopeRoutesRead  = "routes:read"
	ScopeRoutesWrite = "routes:write"
	ScopeSyncRun     = "sync:run"
)
