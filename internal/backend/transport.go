package backend

import (
	"context"
	"io"
	"net/http"

	errs "github.com/fundquest/auth-portal/internal/errors"
	"github.com/fundquest/auth-portal/internal/session"
)

// refreshFunc obtains a fresh session when the current token is
// rejected.
type refreshFunc func(ctx context.Context) (*session.Session, error)

// bearerTransport injects the stored bearer token into every request and
// handles 401 responses uniformly: one refresh attempt, one replay of
// the original request, and on failure the session is cleared and
// errs.ErrUnauthorized surfaces to the caller. Wiring this at the
// transport means every authenticated call gets the behavior without
// call sites reimplementing it.
//
// Requests through this transport must carry no body: the 401 path
// replays them, and a consumed body cannot be resent.
type bearerTransport struct {
	base    http.RoundTripper
	store   *session.Store
	refresh refreshFunc
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	sess, err := t.store.Load()
	if err != nil {
		return nil, err
	}

	if sess == nil {
		return nil, errs.ErrUnauthorized
	}

	resp, err := t.send(req, sess)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	drain(resp)

	fresh, err := t.refresh(req.Context())
	if err != nil {
		_ = t.store.Clear()
		return nil, errs.ErrUnauthorized
	}

	resp, err = t.send(req, fresh)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		_ = t.store.Clear()

		return nil, errs.ErrUnauthorized
	}

	return resp, nil
}

// send clones the request and attaches the session's bearer credential.
func (t *bearerTransport) send(req *http.Request, sess *session.Session) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", sess.TokenType+" "+sess.AccessToken)

	return t.base.RoundTrip(r)
}

// drain discards and closes a response body so the underlying
// connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
