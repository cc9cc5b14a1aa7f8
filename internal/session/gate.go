package session

// RouteKind classifies a route for gating purposes.
type RouteKind int

const (
	// RouteLogin is the public login entry point.
	RouteLogin RouteKind = iota

	// RouteCallback is the OAuth redirect target. It is exempt from
	// gating: it is the only place authentication transitions from
	// false to true.
	RouteCallback

	// RouteProtected is any view requiring an authenticated session.
	RouteProtected
)

// Decision is the outcome of a gating check. An empty RedirectTo means
// the navigation may proceed.
type Decision struct {
	RedirectTo string
}

// Proceed reports whether the navigation is allowed through.
func (d Decision) Proceed() bool {
	return d.RedirectTo == ""
}

// Gate decides, for any navigation, whether the current session state
// permits entry. Decisions are derived purely from Store.IsAuthenticated.
type Gate struct {
	store         *Store
	loginPath     string
	protectedPath string
}

// NewGate creates a Gate redirecting to the given paths. loginPath is
// where unauthenticated users land; protectedPath is where authenticated
// users are sent when they revisit login.
func NewGate(store *Store, loginPath, protectedPath string) *Gate {
	return &Gate{
		store:         store,
		loginPath:     loginPath,
		protectedPath: protectedPath,
	}
}

// Allow returns the gating decision for a route. Protected routes
// require a session; the login route requires its absence, so an
// already-authenticated user is not shown the login view again.
func (g *Gate) Allow(kind RouteKind) Decision {
	authed := g.store.IsAuthenticated()

	switch kind {
	case RouteLogin:
		if authed {
			return Decision{RedirectTo: g.protectedPath}
		}
	case RouteProtected:
		if !authed {
			return Decision{RedirectTo: g.loginPath}
		}
	case RouteCallback:
		// Always allowed.
	}

	return Decision{}
}
