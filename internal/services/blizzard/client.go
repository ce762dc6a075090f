package blizzard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wow-guild-mcp/internal/models"
)

// tokenExpiryMargin is subtracted from the advertised token lifetime so a
// token is refreshed before it can expire mid-request.
const tokenExpiryMargin = time.Minute

// Options configures the gateway client.
type Options struct {
	ClientID     string
	ClientSecret string
	Region       string
	Locale       string
	GameVersion  string // models.VersionRetail or models.VersionClassic

	Limits *RateLimitState
	Logger *zap.Logger

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// AuthURL and BaseURL override the upstream endpoints (tests only).
	AuthURL string
	BaseURL string
}

// Client is the sole caller of the Blizzard API: every request goes through
// the shared rate limiter, the cached OAuth token and the retry loop.
type Client struct {
	http   *resty.Client
	opts   Options
	limits *RateLimitState
	policy retryPolicy
	log    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a gateway client. The rate limit state is injected so a
// single budget can be shared across concurrent realm captures (and so tests
// can substitute their own).
func NewClient(opts Options) (*Client, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("BLIZZARD_CLIENT_ID and BLIZZARD_CLIENT_SECRET must be set")
	}
	if opts.Region == "" {
		opts.Region = "us"
	}
	if opts.Locale == "" {
		opts.Locale = "en_US"
	}
	if opts.GameVersion == "" {
		opts.GameVersion = models.VersionRetail
	}
	if opts.AuthURL == "" {
		opts.AuthURL = "https://oauth.battle.net/token"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = fmt.Sprintf("https://%s.api.blizzard.com", opts.Region)
	}
	if opts.Limits == nil {
		opts.Limits = NewRateLimitState(10, 10)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}

	httpClient := resty.New().
		SetTimeout(opts.RequestTimeout).
		SetHeader("Accept", "application/json")
	// resty has no separate connect timeout knob; the dial deadline rides on
	// the transport.
	if opts.ConnectTimeout > 0 {
		httpClient.SetTransport(newTransport(opts.ConnectTimeout))
	}

	return &Client{
		http:   httpClient,
		opts:   opts,
		limits: opts.Limits,
		policy: defaultRetryPolicy(),
		log:    opts.Logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

// Limits exposes the shared rate limit state for health reporting.
func (c *Client) Limits() *RateLimitState { return c.limits }

// Region returns the configured API region.
func (c *Client) Region() string { return c.opts.Region }

// GameVersion returns the configured game version.
func (c *Client) GameVersion() string { return c.opts.GameVersion }

// AcquireToken returns the cached bearer token, performing the client
// credentials exchange when absent or expired. Concurrent callers serialize
// on the refresh so at most one exchange is in flight.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&body).
		Post(c.opts.AuthURL)
	if err != nil {
		return "", &AuthError{Message: fmt.Sprintf("token exchange failed: %v", err)}
	}
	if resp.IsError() || body.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode(), Message: "token exchange rejected"}
	}

	expiresIn := time.Duration(body.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	c.accessToken = body.AccessToken
	c.tokenExpiry = c.now().Add(expiresIn - tokenExpiryMargin)
	c.log.Info("obtained blizzard access token", zap.Duration("expires_in", expiresIn))
	return c.accessToken, nil
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.accessToken = ""
	c.tokenMu.Unlock()
}

// fetch issues one authenticated GET against the API, decoding the response
// into out. Transient failures (429, 5xx, network errors) are retried with
// exponential backoff honoring Retry-After; other 4xx fail immediately.
func (c *Client) fetch(ctx context.Context, endpoint string, params map[string]string, out interface{}) error {
	query := map[string]string{
		"namespace": c.namespaceFor(endpoint),
		"locale":    c.opts.Locale,
	}
	for k, v := range params {
		query[k] = v
	}

	var lastStatus int
	var lastErr error
	for attempt := 0; attempt < c.policy.maxAttempts; attempt++ {
		if err := c.limits.Wait(ctx); err != nil {
			return err
		}
		token, err := c.AcquireToken(ctx)
		if err != nil {
			return err
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(query).
			SetResult(out).
			Get(c.opts.BaseURL + endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			delay := c.policy.nextDelay(attempt)
			c.log.Warn("blizzard request failed, retrying",
				zap.String("endpoint", endpoint), zap.Int("attempt", attempt+1), zap.Error(err))
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case resp.IsSuccess():
			return nil
		case status == 401:
			// Token revoked or expired early; refresh and retry.
			c.invalidateToken()
			lastStatus = status
			continue
		case status == 429:
			retryAfter := parseRetryAfter(resp.Header().Get("Retry-After"))
			c.limits.Record429(retryAfter)
			delay := retryAfter
			if delay <= 0 {
				delay = c.policy.nextDelay(attempt)
			}
			lastStatus = status
			c.log.Warn("blizzard rate limited",
				zap.String("endpoint", endpoint), zap.Duration("retry_after", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		case status >= 500:
			lastStatus = status
			delay := c.policy.nextDelay(attempt)
			c.log.Warn("blizzard server error, retrying",
				zap.String("endpoint", endpoint), zap.Int("status", status), zap.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		default:
			return &BadRequestError{StatusCode: status, Message: trimBody(resp.String())}
		}
	}

	return &UpstreamUnavailableError{
		StatusCode: lastStatus,
		Attempts:   c.policy.maxAttempts,
		LastErr:    lastErr,
	}
}

// namespaceFor selects the API namespace for an endpoint. Classic and retail
// use different namespace families, and within each the profile, dynamic and
// static data live apart.
func (c *Client) namespaceFor(endpoint string) string {
	region := c.opts.Region
	if c.opts.GameVersion == models.VersionClassic {
		switch {
		case strings.Contains(endpoint, "/profile/"):
			return "profile-classic-" + region
		case strings.Contains(endpoint, "/auctions"),
			strings.Contains(endpoint, "/connected-realm/"),
			strings.Contains(endpoint, "/data/wow/realm/"),
			strings.Contains(endpoint, "/data/wow/search/realm"):
			return "dynamic-classic-" + region
		default:
			return "static-classic-" + region
		}
	}
	switch {
	case strings.Contains(endpoint, "/profile/"):
		return "profile-" + region
	case strings.Contains(endpoint, "/data/wow/guild/"):
		// Guild endpoints need the profile namespace even though they live
		// under /data/.
		return "profile-" + region
	case strings.Contains(endpoint, "/data/wow/item/"),
		strings.Contains(endpoint, "/data/wow/media/"):
		return "static-" + region
	case strings.Contains(endpoint, "/data/"):
		return "dynamic-" + region
	default:
		return "profile-" + region
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func trimBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
