package strava

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pysugar/strava-sync/internal/db/models"
	"github.com/pysugar/strava-sync/internal/observability"
	"github.com/pysugar/strava-sync/internal/store"
)

// refreshThreshold: refresh whenever the token has less than this long to
// live, leaving margin for network latency and an in-flight long fetch.
const refreshThreshold = time.Hour

// Lifecycle drives the per-user OAuth state machine: exchange links the
// account, EnsureFresh refreshes before expiry, Revoke unlinks.
type Lifecycle struct {
	client *Client
	users  *store.UserStore

	mu        sync.Mutex
	userLocks map[uint]*sync.Mutex
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(client *Client, users *store.UserStore) *Lifecycle {
	return &Lifecycle{
		client:    client,
		users:     users,
		userLocks: make(map[uint]*sync.Mutex),
	}
}

// AuthorizationURL returns the consent page URL. No local state changes.
func (l *Lifecycle) AuthorizationURL() string {
	return l.client.AuthorizationURL()
}

// Linked reports whether the user holds a complete token triple. Handlers
// use this as the no-op guard before Revoke.
func (l *Lifecycle) Linked(user *models.User) bool {
	return user.StravaLinked()
}

// Exchange redeems the one-time code and stores the token triple,
// transitioning the user to linked.
func (l *Lifecycle) Exchange(ctx context.Context, user *models.User, code string) error {
	triple, err := l.client.ExchangeCode(ctx, code)
	if err != nil {
		return err
	}
	return l.users.SaveStravaTokens(ctx, user, triple.AccessToken, triple.RefreshToken, triple.ExpiresAt)
}

// EnsureFresh refreshes the stored token triple when it expires within the
// threshold. A per-user lock plus a re-read of the stored expiry keeps two
// racing requests from both consuming the single-use refresh token.
func (l *Lifecycle) EnsureFresh(ctx context.Context, user *models.User) error {
	if !user.StravaLinked() {
		return ErrNotLinked
	}
	if !needsRefresh(user) {
		return nil
	}

	lock := l.lockFor(user.ID)
	lock.Lock()
	defer lock.Unlock()

	// A concurrent request may have refreshed while we waited for the lock.
	fresh, err := l.users.ByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if !fresh.StravaLinked() {
		return ErrNotLinked
	}
	if !needsRefresh(fresh) {
		*user = *fresh
		return nil
	}

	triple, err := l.client.Refresh(ctx, *fresh.StravaRefreshToken)
	if err != nil {
		observability.RecordTokenRefresh("error")
		return err
	}
	if err := l.users.SaveStravaTokens(ctx, fresh, triple.AccessToken, triple.RefreshToken, triple.ExpiresAt); err != nil {
		return err
	}
	observability.RecordTokenRefresh("ok")
	log.Printf("refreshed strava token for user %d (expires %s)", fresh.ID, time.Unix(triple.ExpiresAt, 0).Format(time.RFC3339))

	*user = *fresh
	return nil
}

// Revoke deauthorizes at Strava, then nulls the stored fields. On remote
// failure the local fields are left untouched; there is no partial revoke.
func (l *Lifecycle) Revoke(ctx context.Context, user *models.User) error {
	if !user.StravaLinked() {
		return ErrNotLinked
	}
	if err := l.client.Deauthorize(ctx, *user.StravaAccessToken); err != nil {
		return err
	}
	return l.users.ClearStravaTokens(ctx, user)
}

func needsRefresh(user *models.User) bool {
	expiry := time.Unix(*user.StravaTokenExpiresAt, 0)
	return time.Until(expiry) < refreshThreshold
}

func (l *Lifecycle) lockFor(userID uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.userLocks[userID] = lock
	}
	return lock
}
