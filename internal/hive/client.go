// Package hive is the Hive blockchain activity source. It talks JSON-RPC
// to the public condenser_api with node failover, pacing and retries.
package hive

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/community-pulse/internal/circuitbreaker"
	"github.com/community-pulse/internal/config"
	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
	"github.com/community-pulse/internal/retry"
)

const (
	followersPageSize = 1000
	hiveTimeLayout    = "2006-01-02T15:04:05"
)

// Client implements the activity source against Hive API nodes
type Client struct {
	pool     *NodePool
	breaker  *circuitbreaker.CircuitBreaker
	limiter  *rate.Limiter
	retryCfg *retry.RetryConfig
	timeout  time.Duration
	pageSize int
	maxPages int
	logger   *logging.Logger
}

// Option customizes a Client
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	retryCfg   *retry.RetryConfig
	logger     *logging.Logger
}

// WithHTTPClient sets the HTTP client used for every node
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithRetryConfig overrides the backoff between attempts
func WithRetryConfig(cfg *retry.RetryConfig) Option {
	return func(o *clientOptions) { o.retryCfg = cfg }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient builds a client over cfg.Nodes
func NewClient(cfg config.HiveConfig, opts ...Option) (*Client, error) {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.GetGlobalLogger()
	}
	if o.retryCfg == nil {
		o.retryCfg = retry.DefaultRetryConfig()
	}
	if cfg.MaxRetries > 0 {
		rc := *o.retryCfg
		rc.MaxAttempts = cfg.MaxRetries
		o.retryCfg = &rc
	}

	pool, err := NewNodePool(NodePoolConfig{
		Endpoints:    cfg.Nodes,
		CooldownTime: cfg.NodeCooldown,
		HTTPClient:   o.httpClient,
		Logger:       o.logger,
	})
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}

	pageSize := cfg.HistoryPageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	maxPages := cfg.HistoryMaxPages
	if maxPages <= 0 {
		maxPages = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:        "hive",
		MaxFailures: cfg.BreakerThreshold,
		Cooldown:    cfg.BreakerCooldown,
	})

	return &Client{
		pool:     pool,
		breaker:  breaker,
		limiter:  rate.NewLimiter(limit, 1),
		retryCfg: o.retryCfg,
		timeout:  timeout,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   o.logger.WithComponent("hive"),
	}, nil
}

// Close releases node connections
func (c *Client) Close() {
	c.pool.Close()
}

// Status exposes the node pool and breaker state
func (c *Client) Status() *PoolStatus {
	st := c.pool.Status()
	st.Breaker = c.breaker.GetStats()
	return st
}

// call runs one JSON-RPC method with pacing, a per-attempt timeout and
// failover to the next node between attempts.
func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	c.pool.TryResetToPrimary()

	var lastNode string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.attempt(ctx, result, method, &lastNode, args...)
	})
	if err == nil {
		return nil
	}

	var httpErr rpc.HTTPError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewSourceTimeoutError(method)
	case stderrors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests:
		e := errors.NewSourceRateLimitError(lastNode)
		e.Cause = err
		return e
	default:
		return errors.NewSourceError(method, err)
	}
}

// attempt is one retried call across the node pool
func (c *Client) attempt(ctx context.Context, result interface{}, method string, lastNode *string, args ...interface{}) error {
	return retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		n, err := c.pool.current()
		if err != nil {
			return err
		}
		*lastNode = n.url

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		err = n.client.CallContext(callCtx, result, method, args...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		c.pool.MarkFailed(n.index, err)
		return err
	})
}

type followEntry struct {
	Follower  string   `json:"follower"`
	Following string   `json:"following"`
	What      []string `json:"what"`
}

// GetFollowers returns every account following the community account,
// paging through condenser_api.get_followers.
func (c *Client) GetFollowers(ctx context.Context, community string) ([]string, error) {
	seen := make(map[string]struct{})
	var followers []string
	start := ""

	for {
		var page []followEntry
		if err := c.call(ctx, &page, "condenser_api.get_followers", community, start, "blog", followersPageSize); err != nil {
			return nil, err
		}

		added := 0
		for _, f := range page {
			name := models.NormalizeUsername(f.Follower)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			followers = append(followers, name)
			added++
		}

		// The next page starts at the last follower, which is returned again
		if len(page) < followersPageSize || added == 0 {
			break
		}
		start = page[len(page)-1].Follower
	}

	c.logger.WithFields(map[string]interface{}{
		"community": community,
		"followers": len(followers),
	}).Info("Fetched community followers")

	return followers, nil
}

// flexInt accepts a JSON number or a quoted number
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		v = int64(fl)
	}
	*f = flexInt(v)
	return nil
}

type accountResult struct {
	Name                string  `json:"name"`
	Reputation          flexInt `json:"reputation"`
	Created             string  `json:"created"`
	JSONMetadata        string  `json:"json_metadata"`
	PostingJSONMetadata string  `json:"posting_json_metadata"`
}

type followCount struct {
	FollowerCount  int `json:"follower_count"`
	FollowingCount int `json:"following_count"`
}

// GetAccountInfo returns profile data for username, or nil when the account
// does not exist. Follow counts are best effort.
func (c *Client) GetAccountInfo(ctx context.Context, username string) (*models.AccountInfo, error) {
	var accounts []accountResult
	if err := c.call(ctx, &accounts, "condenser_api.get_accounts", []string{username}); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	acc := accounts[0]

	info := &models.AccountInfo{
		Username:    acc.Name,
		DisplayName: displayName(acc),
		Reputation:  int64(acc.Reputation),
	}
	if created, err := time.Parse(hiveTimeLayout, acc.Created); err == nil {
		info.CreatedAt = created.UTC()
	}

	var counts followCount
	if err := c.call(ctx, &counts, "condenser_api.get_follow_count", username); err != nil {
		c.logger.WithField("username", username).WithError(err).Warn("Follow count unavailable")
	} else {
		info.Followers = counts.FollowerCount
		info.Following = counts.FollowingCount
	}

	return info, nil
}

// displayName reads profile.name from the posting metadata, then the
// legacy json_metadata, then falls back to the account name.
func displayName(acc accountResult) string {
	for _, raw := range []string{acc.PostingJSONMetadata, acc.JSONMetadata} {
		if raw == "" {
			continue
		}
		var meta struct {
			Profile struct {
				Name string `json:"name"`
			} `json:"profile"`
		}
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			continue
		}
		if name := strings.TrimSpace(meta.Profile.Name); name != "" {
			return name
		}
	}
	return acc.Name
}
