// Package fetch downloads charts and chart metadata from an osu! mirror.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/levigross/grequests"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"osusim/config"
	"osusim/dotosu"
)

const (
	sessionCookie = "osu_session"
	slowDownBody  = "Slow down, play more."
	maxIDsPerCall = 50
)

var (
	ErrRateLimited = errors.New("fetch: rate limited")
	ErrNotFound    = errors.New("fetch: not found")
)

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

type Option func(*Client)

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

type Client struct {
	mirror    string
	apiKey    string
	userAgent string
	timeout   time.Duration
	jar       http.CookieJar
	throttle  *throttle
	log       logrus.FieldLogger

	mu    sync.Mutex
	token *Token
}

func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	mirror := strings.TrimRight(cfg.Mirror, "/")
	base, err := url.Parse(mirror)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("mirror %q is not an absolute url", cfg.Mirror)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if cfg.Session != "" {
		jar.SetCookies(base, []*http.Cookie{{Name: sessionCookie, Value: cfg.Session, Path: "/"}})
	}

	c := &Client{
		mirror:    mirror,
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		jar:       jar,
		throttle:  newThrottle(cfg.RateLimit, time.Minute, cfg.Concurrency),
		log:       logrus.StandardLogger().WithField("component", "fetch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) options(ctx context.Context) *grequests.RequestOptions {
	ro := &grequests.RequestOptions{
		Context:        ctx,
		UserAgent:      c.userAgent,
		RequestTimeout: c.timeout,
		CookieJar:      c.jar,
		UseCookieJar:   true,
		Headers:        map[string]string{"Accept": "*/*"},
	}
	c.mu.Lock()
	if c.token != nil {
		ro.Headers["Authorization"] = c.token.TokenType + " " + c.token.AccessToken
	}
	c.mu.Unlock()
	return ro
}

type requestFunc func(string, *grequests.RequestOptions) (*grequests.Response, error)

// do runs one throttled request. The caller owns the returned response.
func (c *Client) do(ctx context.Context, send requestFunc, path, rawQuery string, ro *grequests.RequestOptions) (*grequests.Response, error) {
	release, err := c.throttle.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	u := c.mirror + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	start := time.Now()
	resp, err := send(u, ro)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	c.log.WithFields(logrus.Fields{
		"path":    path,
		"status":  resp.StatusCode,
		"elapsed": time.Since(start),
	}).Debug("request")

	if err := checkResponse(resp, path); err != nil {
		resp.Close()
		return nil, err
	}
	return resp, nil
}

func checkResponse(resp *grequests.Response, path string) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, path)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case !resp.Ok:
		body := resp.String()
		if len(body) > 200 {
			body = body[:200]
		}
		return &StatusError{StatusCode: resp.StatusCode, Path: path, Body: body}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, rawQuery string) ([]byte, error) {
	resp, err := c.do(ctx, grequests.Get, path, rawQuery, c.options(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	body := resp.Bytes()
	if resp.Error != nil {
		return nil, fmt.Errorf("read %s: %w", path, resp.Error)
	}
	if bytes.Contains(body, []byte(slowDownBody)) {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, path)
	}
	return body, nil
}

// Chart downloads one .osu file and checks that it parses as a chart.
func (c *Client) Chart(ctx context.Context, beatmapID int) ([]byte, *dotosu.Beatmap, error) {
	path := "/osu/" + strconv.Itoa(beatmapID)
	body, err := c.get(ctx, path, "")
	if err != nil {
		return nil, nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil, fmt.Errorf("%w: beatmap %d", ErrNotFound, beatmapID)
	}
	b, err := dotosu.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("beatmap %d: %w", beatmapID, err)
	}
	return body, b, nil
}

// Download saves beatmap id as <dir>/<id>.osu and returns the path.
func (c *Client) Download(ctx context.Context, beatmapID int, dir string) (string, error) {
	body, _, err := c.Chart(ctx, beatmapID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, strconv.Itoa(beatmapID)+".osu")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("save beatmap %d: %w", beatmapID, err)
	}
	c.log.WithFields(logrus.Fields{"beatmap": beatmapID, "path": path}).Info("downloaded chart")
	return path, nil
}

// Lookup queries the v1 get_beatmaps endpoint with the configured API key.
func (c *Client) Lookup(ctx context.Context, q LookupQuery) ([]BeatmapInfo, error) {
	v, err := query.Values(lookupParams{LookupQuery: q, Key: c.apiKey})
	if err != nil {
		return nil, fmt.Errorf("encode lookup: %w", err)
	}
	resp, err := c.do(ctx, grequests.Get, "/api/get_beatmaps", v.Encode(), c.options(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var infos []BeatmapInfo
	if err := resp.JSON(&infos); err != nil {
		return nil, fmt.Errorf("decode lookup: %w", err)
	}
	return infos, nil
}

// Beatmaps fetches up to 50 charts from the v2 API. It needs a token from
// Authenticate.
func (c *Client) Beatmaps(ctx context.Context, ids []int) ([]Beatmap, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > maxIDsPerCall {
		return nil, fmt.Errorf("cannot request more than %d beatmaps at once", maxIDsPerCall)
	}
	v, err := query.Values(beatmapsQuery{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("encode ids: %w", err)
	}
	ro := c.options(ctx)
	ro.Headers["Accept"] = "application/json"
	resp, err := c.do(ctx, grequests.Get, "/api/v2/beatmaps", v.Encode(), ro)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var out struct {
		Beatmaps []Beatmap `json:"beatmaps"`
	}
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("decode beatmaps: %w", err)
	}
	return out.Beatmaps, nil
}

// Authenticate runs the client-credentials grant and attaches the token to
// every later request.
func (c *Client) Authenticate(ctx context.Context, clientID int, secret string) (*Token, error) {
	ro := c.options(ctx)
	ro.Headers["Accept"] = "application/json"
	ro.Data = map[string]string{
		"client_id":     strconv.Itoa(clientID),
		"client_secret": secret,
		"grant_type":    "client_credentials",
		"scope":         "public",
	}
	resp, err := c.do(ctx, grequests.Post, "/oauth/token", "", ro)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var tok Token
	if err := resp.JSON(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token response without access_token")
	}
	c.mu.Lock()
	c.token = &tok
	c.mu.Unlock()
	return &tok, nil
}
