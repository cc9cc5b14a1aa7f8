// Package session owns the authenticated session: its durable storage
// and the route gating decisions derived from it. The Store is the only
// holder of session state; every other component queries it.
package session

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// dbDirPerm is the permission mode for the state directory.
	dbDirPerm = fs.FileMode(0o700)

	// dbFilePerm is the permission mode for the session database file.
	dbFilePerm = fs.FileMode(0o600)

	// dbOpenTimeout is the maximum time to wait for the bolt database lock.
	dbOpenTimeout = 5 * time.Second
)

var (
	sessionBucket  = []byte("session")
	accessTokenKey = []byte("access_token")
	tokenTypeKey   = []byte("token_type")
	expiresInKey   = []byte("expires_in")
	obtainedAtKey  = []byte("obtained_at")
)

// Session is the authenticated state as issued by the backend. A session
// exists if and only if the user is considered authenticated.
type Session struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64

	// ObtainedAt records when the token was issued to this client. Set
	// by Save when zero. Used for display only; authentication is a
	// presence check.
	ObtainedAt time.Time
}

// ExpiresAt returns the absolute expiry time reported at issuance.
func (s Session) ExpiresAt() time.Time {
	return s.ObtainedAt.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// Store persists the session in a bbolt database. All three token
// attributes are written and removed in a single transaction, so a
// partially saved or partially cleared session is never observable.
type Store struct {
	db *bolt.DB
}

// Open opens the session database at the given path, creating it if it
// does not exist. The session bucket is created on open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	db, err := bolt.Open(path, dbFilePerm, &bolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the session. The write is atomic: readers observe either
// the previous session or the complete new one.
func (s *Store) Save(sess Session) error {
	if sess.AccessToken == "" {
		return fmt.Errorf("refusing to save session without an access token")
	}

	if sess.TokenType == "" {
		sess.TokenType = "Bearer"
	}

	if sess.ObtainedAt.IsZero() {
		sess.ObtainedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)

		if err := b.Put(accessTokenKey, []byte(sess.AccessToken)); err != nil {
			return err
		}

		if err := b.Put(tokenTypeKey, []byte(sess.TokenType)); err != nil {
			return err
		}

		if err := b.Put(expiresInKey, []byte(strconv.FormatInt(sess.ExpiresIn, 10))); err != nil {
			return err
		}

		return b.Put(obtainedAtKey, []byte(sess.ObtainedAt.UTC().Format(time.RFC3339)))
	})
}

// Load returns the stored session, or nil when none exists.
func (s *Store) Load() (*Session, error) {
	var sess *Session

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)

		token := b.Get(accessTokenKey)
		if len(token) == 0 {
			return nil
		}

		sess = &Session{
			AccessToken: string(token),
			TokenType:   string(b.Get(tokenTypeKey)),
		}

		if v := b.Get(expiresInKey); v != nil {
			n, err := strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt expires_in value %q: %w", v, err)
			}

			sess.ExpiresIn = n
		}

		if v := b.Get(obtainedAtKey); v != nil {
			ts, err := time.Parse(time.RFC3339, string(v))
			if err != nil {
				return fmt.Errorf("corrupt obtained_at value %q: %w", v, err)
			}

			sess.ObtainedAt = ts
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// Clear removes the session. All attributes are deleted in one
// transaction. Clearing an empty store is a no-op, never an error.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)

		for _, key := range [][]byte{accessTokenKey, tokenTypeKey, expiresInKey, obtainedAtKey} {
			if err := b.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
}

// IsAuthenticated reports whether a session is present. Presence is the
// only criterion: expiry is not enforced client-side, the backend's 401
// is the authority on staleness.
func (s *Store) IsAuthenticated() bool {
	sess, err := s.Load()

	return err == nil && sess != nil
}
