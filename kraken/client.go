package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"solbridge/config"
	"solbridge/logger"
)

// Response is the standard Kraken envelope. Result stays raw so each
// caller decodes its own shape.
type Response struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Client issues signed private and unsigned public requests against
// the Kraken REST API. One Client serves one API key; the nonce
// source is shared across goroutines.
type Client struct {
	apiBase string
	apiKey  string
	secret  []byte
	http    *http.Client
	limiter *rate.Limiter
	nonce   *nonceSource
	log     *logger.Entry
}

// NewClient decodes the base64 signing secret and builds the client.
// The decoded secret lives only inside the returned Client and is
// never echoed in errors or logs.
func NewClient(cfg config.KrakenConfig, creds config.Credentials, log *logger.Log) (*Client, error) {
	secret, err := base64.StdEncoding.DecodeString(creds.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("signing secret is not valid base64")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  creds.APIKey,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		nonce:   newNonceSource(),
		log:     log.WithComponent("kraken-client"),
	}, nil
}

// Sign computes the API-Sign header value for one request:
// base64(HMAC-SHA512(secret, path || SHA256(nonce || postdata))).
func Sign(secret []byte, path, nonce, postdata string) string {
	digest := sha256.Sum256([]byte(nonce + postdata))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Send issues one signed POST to a private endpoint. params may be
// nil. The nonce is injected here; callers never set it.
func (c *Client) Send(ctx context.Context, path string, params url.Values) (*Response, error) {
	if params == nil {
		params = url.Values{}
	}
	nonce := c.nonce.Next()
	params.Set("nonce", nonce)
	postdata := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, strings.NewReader(postdata))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.apiKey)
	req.Header.Set("API-Sign", Sign(c.secret, path, nonce, postdata))

	return c.do(ctx, path, req)
}

// Public issues one unsigned GET to a public endpoint.
func (c *Client) Public(ctx context.Context, path string, params url.Values) (*Response, error) {
	target := c.apiBase + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	return c.do(ctx, path, req)
}

func (c *Client) do(ctx context.Context, path string, req *http.Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}

	c.log.WithFields(map[string]interface{}{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("kraken request completed")

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: http status %d", ErrAuth, resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: http status %d", ErrRateLimited, resp.StatusCode)
	}

	var envelope Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &MalformedResponseError{Path: path, Status: resp.StatusCode, Err: err}
	}
	if len(envelope.Error) > 0 {
		return &envelope, classifyEnvelope(path, envelope.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &MalformedResponseError{
			Path:   path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status without envelope error"),
		}
	}
	return &envelope, nil
}
