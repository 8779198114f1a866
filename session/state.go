package session

// State is the session lifecycle phase.
//
//	Unauthenticated → Authenticating → Authenticated
//	Authenticated → Refreshing → Authenticated | Unauthenticated
//	Authenticated → LoggingOut → Unauthenticated
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
	StateLoggingOut      State = "logging_out"
)
