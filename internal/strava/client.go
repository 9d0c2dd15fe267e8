// Package strava talks to the Strava OAuth and REST endpoints and manages
// the per-user token lifecycle.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pysugar/strava-sync/internal/config"
	"golang.org/x/oauth2"
)

var (
	// ErrExchangeFailed indicates Strava rejected the one-time code.
	ErrExchangeFailed = errors.New("strava code exchange failed")
	// ErrRefreshFailed indicates the refresh token was rejected; the caller
	// must surface this as "re-authorization required", never retry.
	ErrRefreshFailed = errors.New("strava token refresh failed")
	// ErrRevokeFailed indicates the deauthorize call errored.
	ErrRevokeFailed = errors.New("strava deauthorize failed")
	// ErrFetchFailed indicates the activity fetch errored; retryable by the
	// caller, never retried here.
	ErrFetchFailed = errors.New("strava activity fetch failed")
	// ErrNotLinked is returned for token operations on an unlinked account.
	ErrNotLinked = errors.New("no strava account linked")
)

const activitiesPerPage = 30

// TokenTriple is the (access token, refresh token, absolute expiry) set
// issued by Strava.
type TokenTriple struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // epoch seconds
}

// RemoteActivity is one activity record as fetched from Strava.
type RemoteActivity struct {
	ID                 int64
	Name               string
	Type               string
	StartDate          time.Time
	Distance           float64
	MovingTime         int
	ElapsedTime        int
	TotalElevationGain float64
	AverageSpeed       float64
	MaxSpeed           float64
}

// wireActivity mirrors the athlete/activities JSON payload.
type wireActivity struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	StartDate          string  `json:"start_date"`
	Distance           float64 `json:"distance"`
	MovingTime         int     `json:"moving_time"`
	ElapsedTime        int     `json:"elapsed_time"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
	AverageSpeed       float64 `json:"average_speed"`
	MaxSpeed           float64 `json:"max_speed"`
}

// Client performs the outbound Strava calls with a bounded timeout.
type Client struct {
	cfg        *config.StravaConfig
	httpClient *http.Client
}

// NewClient creates a Client from the Strava configuration.
func NewClient(cfg *config.StravaConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout()},
	}
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURI,
		Scopes:       []string{"activity:read_all"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.cfg.BaseURL + "/oauth/authorize",
			TokenURL: c.cfg.BaseURL + "/oauth/token",
		},
	}
}

// withHTTPClient makes the oauth2 package use our bounded-timeout client.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthorizationURL builds the redirect URL for the user consent page.
func (c *Client) AuthorizationURL() string {
	return c.oauthConfig().AuthCodeURL("", oauth2.ApprovalForce)
}

// ExchangeCode redeems a one-time authorization code for a token triple.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenTriple, error) {
	token, err := c.oauthConfig().Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return tripleFromToken(token, ""), nil
}

// Refresh redeems a refresh token for a fresh token triple. Strava rotates
// refresh tokens; when the response omits one the old token is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenTriple, error) {
	src := c.oauthConfig().TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	return tripleFromToken(token, refreshToken), nil
}

func tripleFromToken(token *oauth2.Token, fallbackRefresh string) *TokenTriple {
	triple := &TokenTriple{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.Unix(),
	}
	if triple.RefreshToken == "" {
		triple.RefreshToken = fallbackRefresh
	}
	return triple
}

// Deauthorize revokes the access token at Strava. Nothing is changed locally
// here; callers clear stored fields only after this succeeds.
func (c *Client) Deauthorize(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth/deauthorize", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRevokeFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRevokeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRevokeFailed, resp.StatusCode)
	}
	return nil
}

// Activities fetches the athlete's activities starting no earlier than the
// `after` bound (epoch seconds), following pagination until a short page.
func (c *Client) Activities(ctx context.Context, accessToken string, after int64) ([]RemoteActivity, error) {
	var all []RemoteActivity
	for page := 1; ; page++ {
		batch, err := c.activitiesPage(ctx, accessToken, after, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < activitiesPerPage {
			return all, nil
		}
	}
}

func (c *Client) activitiesPage(ctx context.Context, accessToken string, after int64, page int) ([]RemoteActivity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+"/athlete/activities", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	q := req.URL.Query()
	q.Set("after", strconv.FormatInt(after, 10))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(activitiesPerPage))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var wire []wireActivity
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	activities := make([]RemoteActivity, 0, len(wire))
	for _, w := range wire {
		startDate, err := time.Parse(time.RFC3339, w.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad start_date %q: %v", ErrFetchFailed, w.StartDate, err)
		}
		activities = append(activities, RemoteActivity{
			ID:                 w.ID,
			Name:               w.Name,
			Type:               w.Type,
			StartDate:          startDate,
			Distance:           w.Distance,
			MovingTime:         w.MovingTime,
			ElapsedTime:        w.ElapsedTime,
			TotalElevationGain: w.TotalElevationGain,
			AverageSpeed:       w.AverageSpeed,
			MaxSpeed:           w.MaxSpeed,
		})
	}
	return activities, nil
}
