// Package msauth builds Microsoft authorization URLs and parses the
// redirect callback. It never performs network I/O: the browser carries
// the user to the identity provider and back.
package msauth

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Builder constructs authorization URLs for the code flow. Construction
// is validated by config at startup; AuthURL itself cannot fail.
type Builder struct {
	cfg oauth2.Config
}

// NewBuilder creates a Builder for the given app registration. The
// tenant ID selects the authority endpoint; scope order is preserved.
func NewBuilder(clientID, tenantID, redirectURI string, scopes []string) *Builder {
	return &Builder{
		cfg: oauth2.Config{
			ClientID:    clientID,
			Endpoint:    microsoft.AzureADEndpoint(tenantID),
			RedirectURL: redirectURI,
			Scopes:      scopes,
		},
	}
}

// AuthURL returns an absolute authorization URL ready for full-page
// navigation, plus the state value embedded in it. Each call generates a
// fresh state and nonce. response_mode=query selects code delivery via
// query parameters; the fragment-based implicit flow is deliberately not
// supported.
func (b *Builder) AuthURL() (authURL, state string) {
	state = RandomHex(16)
	nonce := uuid.NewString()

	authURL = b.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	return authURL, state
}

// Callback holds the parameters the identity provider delivered on the
// redirect. Exactly one of Code or Error is set on a well-formed
// callback; both empty means the redirect was not produced by the
// provider.
type Callback struct {
	Code             string
	Error            string
	ErrorDescription string
	State            string
}

// Denied reports whether the provider returned an error instead of a
// code.
func (c Callback) Denied() bool {
	return c.Error != ""
}

// ParseCallback extracts the authorization code or provider error from
// a redirect URL. Only the query component is read, never the fragment.
// Parsing is pure and idempotent; absent parameters yield empty fields
// rather than an error.
func ParseCallback(u *url.URL) Callback {
	q := u.Query()

	return Callback{
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		State:            q.Get("state"),
	}
}

// RandomHex generates a cryptographically random hex string of the given
// byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
