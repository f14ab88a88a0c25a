// Package httpstore reads objects from a plain HTTP origin that honours
// Range requests. Handles map to <origin>/<handle>.
package httpstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
	"github.com/zero5yt/StreamixBot2.0/pkg/version"
)

// ErrUnknownSize is returned when the origin does not report a
// Content-Length for an object.
var ErrUnknownSize = errors.New("origin did not report the object size")

const (
	retryMinWait     = 100 * time.Millisecond
	retryMaxWait     = 3000 * time.Millisecond // do not backoff further than 3 seconds
	retrySleepJitter = 500                     // (will add 0-500 additional milliseconds), multiplied by time.Millisecond in backoffFunc
)

type Options struct {
	OriginURL      string
	Token          string
	Retries        int
	ConnectTimeout time.Duration
	// ResolveOverrides maps host:port to ip:port for the dialer.
	ResolveOverrides map[string]string
	// Transport replaces the network transport; the user agent is still set.
	Transport http.RoundTripper
}

// Client is one connection to the origin. Every Client owns its own
// transport so load spread across a pool reaches the origin over separate
// connections.
type Client struct {
	origin   *url.URL
	token    string
	http     *http.Client
	location remote.LocationID
}

var (
	_ remote.Client  = &Client{}
	_ remote.Session = &session{}
)

func New(opts Options) (*Client, error) {
	origin, err := url.Parse(strings.TrimRight(opts.OriginURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing origin url: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("origin url must be http or https, got %q", opts.OriginURL)
	}
	return &Client{
		origin:   origin,
		token:    opts.Token,
		http:     newHTTPClient(opts),
		location: remote.LocationID(origin.Host),
	}, nil
}

type UserAgentTransport struct {
	Transport http.RoundTripper
}

func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	return t.Transport.RoundTrip(req)
}

func newHTTPClient(opts Options) *http.Client {
	base := opts.Transport
	if base == nil {
		timeout := opts.ConnectTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: transportDialContext(&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}, opts.ResolveOverrides),
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	retryClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     &UserAgentTransport{Transport: base},
			CheckRedirect: checkRedirectFunc,
		},
		Logger:       nil,
		RetryWaitMin: retryMinWait,
		RetryWaitMax: retryMaxWait,
		RetryMax:     opts.Retries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      backoffFunc,
	}
	return retryClient.StandardClient()
}

// backoffFunc adds a random jitter to retryablehttp.DefaultBackoff so that
// many streams failing together do not retry in lockstep.
func backoffFunc(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	sleep := time.Duration(rand.Intn(retrySleepJitter)) * time.Millisecond
	sleep += retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	return sleep
}

func checkRedirectFunc(req *http.Request, via []*http.Request) error {
	logger := logging.GetLogger()
	logger.Trace().
		Str("redirect_url", req.URL.String()).
		Str("url", via[0].URL.String()).
		Int("status", req.Response.StatusCode).
		Msg("Redirect")
	return nil
}

// transportDialContext overrides DNS lookups for hosts passed to --resolve
// without touching Host headers or TLS server names.
func transportDialContext(dialer *net.Dialer, overrides map[string]string) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addrOverride := overrides[addr]; addrOverride != "" {
			logger := logging.GetLogger()
			logger.Debug().Str("addr", addr).Str("override", addrOverride).Msg("DNS Override")
			addr = addrOverride
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

func (c *Client) objectURL(h remote.Handle) string {
	u := *c.origin
	u.Path = path.Join(u.Path, strconv.FormatInt(int64(h), 10))
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// Lookup issues a HEAD request and builds the object's metadata from the
// response headers.
func (c *Client) Lookup(ctx context.Context, h remote.Handle) (remote.MediaRef, error) {
	target := c.objectURL(h)
	req, err := c.newRequest(ctx, http.MethodHead, target)
	if err != nil {
		return remote.MediaRef{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return remote.MediaRef{}, fmt.Errorf("looking up %s: %w", target, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return remote.MediaRef{}, fmt.Errorf("%w: %d", remote.ErrObjectNotFound, h)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return remote.MediaRef{}, fmt.Errorf("looking up %s: %w", target, remote.StatusError{StatusCode: resp.StatusCode})
	}

	size := resp.ContentLength
	if size < 0 {
		return remote.MediaRef{}, fmt.Errorf("looking up %s: %w", target, ErrUnknownSize)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	return remote.MediaRef{
		Kind:     remote.KindOf(mimeType),
		FileID:   strconv.FormatInt(int64(h), 10),
		FileName: fileName(resp.Header.Get("Content-Disposition")),
		Size:     size,
		MimeType: mimeType,
		Location: c.location,
		Locator:  target,
	}, nil
}

// OpenSession needs no handshake; sessions share the client's transport.
func (c *Client) OpenSession(_ context.Context, loc remote.LocationID) (remote.Session, error) {
	if loc != c.location {
		return nil, fmt.Errorf("location %q is not served by origin %q", loc, c.location)
	}
	return &session{client: c}, nil
}

type session struct {
	client *Client
}

func (s *session) Fetch(ctx context.Context, ref remote.MediaRef, offset, limit int64) ([]byte, error) {
	target, ok := ref.Locator.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected locator %T for http origin", ref.Locator)
	}
	req, err := s.client.newRequest(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+limit-1))
	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	case http.StatusOK:
		// origin ignored the Range header
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("skipping to offset %d: %w", offset, err)
		}
	default:
		return nil, remote.StatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}
	return data, nil
}

func fileName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
