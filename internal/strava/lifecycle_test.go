package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pysugar/strava-sync/internal/config"
	"github.com/pysugar/strava-sync/internal/db/models"
	"github.com/pysugar/strava-sync/internal/store"
	"gorm.io/gorm"
)

// fakeStrava mimics the OAuth and REST endpoints. Refresh tokens are
// single-use, like the real protocol.
type fakeStrava struct {
	srv *httptest.Server

	mu           sync.Mutex
	tokenCalls   int
	deauthCalls  int
	usedRefresh  map[string]bool
	failDeauth   bool
	activityJSON string
}

func newFakeStrava(t *testing.T) *fakeStrava {
	t.Helper()
	f := &fakeStrava{
		usedRefresh:  make(map[string]bool),
		activityJSON: "[]",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", f.handleToken)
	mux.HandleFunc("/oauth/deauthorize", f.handleDeauthorize)
	mux.HandleFunc("/api/v3/athlete/activities", f.handleActivities)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStrava) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		if r.PostFormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	case "refresh_token":
		rt := r.PostFormValue("refresh_token")
		if f.usedRefresh[rt] {
			// A consumed refresh token is permanently invalid.
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		f.usedRefresh[rt] = true
	default:
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		return
	}

	f.tokenCalls++
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"token_type":"Bearer","access_token":"access-%d","refresh_token":"refresh-%d","expires_in":21600}`,
		f.tokenCalls, f.tokenCalls)
}

func (f *fakeStrava) handleDeauthorize(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deauthCalls++
	if f.failDeauth {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(`{}`))
}

func (f *fakeStrava) handleActivities(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(f.activityJSON))
}

func (f *fakeStrava) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func (f *fakeStrava) clientConfig() *config.StravaConfig {
	return &config.StravaConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/strava/callback",
		BaseURL:      f.srv.URL,
		APIBaseURL:   f.srv.URL + "/api/v3",
		Timeout:      "5s",
	}
}

func newTestUsers(t *testing.T) *store.UserStore {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store.NewUserStore(db)
}

func linkedUser(t *testing.T, users *store.UserStore, expiresIn time.Duration) *models.User {
	t.Helper()
	user := &models.User{Username: "alice", Email: "alice@example.com", HashedPassword: "x", IsVerified: true, IsActive: true}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := users.SaveStravaTokens(context.Background(), user, "old-access", "old-refresh", time.Now().Add(expiresIn).Unix()); err != nil {
		t.Fatalf("save tokens: %v", err)
	}
	return user
}

func TestEnsureFresh_TokenStillFresh(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := linkedUser(t, users, 2*time.Hour)

	if err := lc.EnsureFresh(context.Background(), user); err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if fake.refreshCount() != 0 {
		t.Fatalf("expected no remote call, got %d", fake.refreshCount())
	}
	if *user.StravaAccessToken != "old-access" || *user.StravaRefreshToken != "old-refresh" {
		t.Fatalf("fields changed without refresh: %+v", user)
	}
}

func TestEnsureFresh_ExpiringSoon(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := linkedUser(t, users, 10*time.Minute)
	oldExpiry := *user.StravaTokenExpiresAt

	if err := lc.EnsureFresh(context.Background(), user); err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if fake.refreshCount() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", fake.refreshCount())
	}
	if *user.StravaAccessToken != "access-1" || *user.StravaRefreshToken != "refresh-1" {
		t.Fatalf("expected rotated tokens, got %+v", user)
	}
	if *user.StravaTokenExpiresAt <= oldExpiry {
		t.Fatalf("expected expiry to move forward: %d -> %d", oldExpiry, *user.StravaTokenExpiresAt)
	}

	stored, err := users.ByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if *stored.StravaAccessToken != "access-1" {
		t.Fatalf("refresh not persisted: %+v", stored)
	}
}

func TestEnsureFresh_PastExpiry(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := linkedUser(t, users, -time.Hour)
	if err := lc.EnsureFresh(context.Background(), user); err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if fake.refreshCount() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", fake.refreshCount())
	}
}

func TestEnsureFresh_RefreshRejected(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := linkedUser(t, users, 10*time.Minute)
	fake.mu.Lock()
	fake.usedRefresh["old-refresh"] = true
	fake.mu.Unlock()

	err := lc.EnsureFresh(context.Background(), user)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
}

func TestEnsureFresh_Unlinked(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := &models.User{Username: "bob", Email: "bob@example.com", HashedPassword: "x"}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := lc.EnsureFresh(context.Background(), user); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
}

// Two simultaneous EnsureFresh calls must consume the single-use refresh
// token at most once; the loser waits on the lock and sees the new expiry.
func TestEnsureFresh_ConcurrentSingleUse(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	seed := linkedUser(t, users, 10*time.Minute)

	// Each request carries its own copy of the user row.
	ctx := context.Background()
	first, err := users.ByID(ctx, seed.ID)
	if err != nil {
		t.Fatalf("load first copy: %v", err)
	}
	second, err := users.ByID(ctx, seed.ID)
	if err != nil {
		t.Fatalf("load second copy: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, u := range []*models.User{first, second} {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			errs[i] = lc.EnsureFresh(ctx, u)
		}(i, u)
	}
	wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("expected both calls to succeed, got %v / %v", errs[0], errs[1])
	}
	if fake.refreshCount() != 1 {
		t.Fatalf("refresh token consumed %d times, want 1", fake.refreshCount())
	}
	if *first.StravaAccessToken != *second.StravaAccessToken {
		t.Fatalf("callers disagree on access token: %q vs %q", *first.StravaAccessToken, *second.StravaAccessToken)
	}
}

func TestExchange_StoresTriple(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := &models.User{Username: "carol", Email: "carol@example.com", HashedPassword: "x"}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := lc.Exchange(context.Background(), user, "good-code"); err != nil {
		t.Fatalf("exchange: %v", err)
	}

	stored, err := users.ByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !stored.StravaLinked() {
		t.Fatalf("expected linked user, got %+v", stored)
	}
	if *stored.StravaAccessToken != "access-1" || *stored.StravaRefreshToken != "refresh-1" {
		t.Fatalf("unexpected triple: %+v", stored)
	}
}

func TestExchange_BadCode(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := &models.User{Username: "carol", Email: "carol@example.com", HashedPassword: "x"}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	err := lc.Exchange(context.Background(), user, "expired-code")
	if !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
	if user.StravaLinked() {
		t.Fatal("failed exchange must not link the account")
	}
}

func TestRevoke(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := linkedUser(t, users, 6*time.Hour)
	if err := lc.Revoke(context.Background(), user); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	stored, err := users.ByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.StravaLinked() {
		t.Fatalf("expected unlinked user, got %+v", stored)
	}
}

func TestRevoke_RemoteFailureKeepsFields(t *testing.T) {
	fake := newFakeStrava(t)
	fake.failDeauth = true
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := linkedUser(t, users, 6*time.Hour)
	if err := lc.Revoke(context.Background(), user); !errors.Is(err, ErrRevokeFailed) {
		t.Fatalf("expected ErrRevokeFailed, got %v", err)
	}

	stored, err := users.ByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !stored.StravaLinked() {
		t.Fatal("remote failure must leave local fields untouched")
	}
}

func TestRevoke_Unlinked(t *testing.T) {
	fake := newFakeStrava(t)
	users := newTestUsers(t)
	lc := NewLifecycle(NewClient(fake.clientConfig()), users)

	user := &models.User{Username: "dave", Email: "dave@example.com", HashedPassword: "x"}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := lc.Revoke(context.Background(), user); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
	if fake.deauthCalls != 0 {
		t.Fatalf("expected no deauthorize call, got %d", fake.deauthCalls)
	}
}
