// Package solr looks up indexed documents through the Solr select API.
package solr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/pkg/version"
)

const (
	// DefaultBaseURL is the search core used when none is configured.
	DefaultBaseURL = "http://localhost:8983/solr/search_core"

	// DefaultTimeout bounds one select request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the retry budget for transient failures.
	DefaultMaxRetries = 3

	// maxErrorBody caps how much of an error response is kept for logs.
	maxErrorBody = 512
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is the first backoff delay. Zero uses the default.
	RetryDelay time.Duration
	// HTTPClient overrides the default client. Tests inject httptest clients.
	HTTPClient *http.Client
	// Breaker overrides the default circuit breaker.
	Breaker *ierrors.CircuitBreaker
}

// Client reads indexed documents from Solr. It implements filter.Lookup and
// is safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	retry   ierrors.RetryConfig
	breaker *ierrors.CircuitBreaker
}

// New creates a client for the core at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ierrors.ConfigError(fmt.Sprintf("invalid index base URL %q", cfg.BaseURL), err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	retry := ierrors.DefaultRetryConfig()
	retry.MaxRetries = DefaultMaxRetries
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
		if retry.MaxDelay < cfg.RetryDelay {
			retry.MaxDelay = cfg.RetryDelay
		}
	}
	retry.RetryIf = func(err error) bool {
		return ierrors.IsRetryable(err) && !errors.Is(err, ierrors.ErrCircuitOpen)
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = ierrors.NewCircuitBreaker("solr")
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		retry:   retry,
		breaker: breaker,
	}, nil
}

// SelectURL returns the query URL used to look up id.
func (c *Client) SelectURL(id string) string {
	q := url.Values{}
	q.Set("q", meta.FieldID+":"+EscapeQueryChars(id))
	q.Set("fl", strings.Join(meta.IndexFields, ","))
	q.Set("rows", "1")
	q.Set("wt", "json")
	return c.baseURL + "/select?" + q.Encode()
}

// Get fetches the indexed document for id. found is false when the index
// holds no such document.
func (c *Client) Get(ctx context.Context, id string) (meta.IndexedDocument, bool, error) {
	body, err := ierrors.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
		return ierrors.CircuitDo(c.breaker, func() ([]byte, error) {
			return c.fetch(ctx, c.SelectURL(id))
		})
	})
	if err != nil {
		if errors.Is(err, ierrors.ErrCircuitOpen) {
			return meta.IndexedDocument{}, false, ierrors.NetworkError("search index circuit is open", err).
				WithDetail("pid", id)
		}
		return meta.IndexedDocument{}, false, err
	}

	var resp selectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return meta.IndexedDocument{}, false, ierrors.New(ierrors.ErrCodeMalformedDocument,
			"cannot decode select response", fmt.Errorf("%w: %v", ErrMalformedDocument, err))
	}
	if len(resp.Response.Docs) == 0 {
		return meta.IndexedDocument{}, false, nil
	}

	doc, err := parseDocument(resp.Response.Docs[0])
	if err != nil {
		return meta.IndexedDocument{}, false, ierrors.New(ierrors.ErrCodeMalformedDocument,
			"cannot interpret index document", err).WithDetail("pid", id)
	}
	if doc.ID == "" {
		// A document without an id is treated as absent.
		return meta.IndexedDocument{}, false, nil
	}
	return doc, true, nil
}

// Ping checks that the core answers queries.
func (c *Client) Ping(ctx context.Context) error {
	_, err := ierrors.CircuitDo(c.breaker, func() ([]byte, error) {
		return c.fetch(ctx, c.baseURL+"/admin/ping?wt=json")
	})
	return err
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, ierrors.InternalError("build select request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ierrors.New(ierrors.ErrCodeIndexTimeout, "search index request timed out", err)
		}
		return nil, ierrors.NetworkError("search index unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Debug("search index returned error status",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))

		msg := fmt.Sprintf("search index returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, ierrors.NetworkError(msg, nil)
		}
		return nil, ierrors.New(ierrors.ErrCodeLookupFailed, msg, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierrors.NetworkError("read search index response", err)
	}
	return body, nil
}
