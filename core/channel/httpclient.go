package channel

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/propbot/core/logger"
	"github.com/m3rciful/propbot/core/netutil"
)

// ClientOptions tunes the provider HTTP client. Zero fields take defaults.
type ClientOptions struct {
	Timeout       time.Duration
	DialRetries   int
	RetryInterval time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.DialRetries < 0 {
		o.DialRetries = 0
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	return o
}

// BuildHTTPClient returns the default client for provider API calls.
func BuildHTTPClient() *http.Client {
	return NewHTTPClient(ClientOptions{DialRetries: 2})
}

// NewHTTPClient builds a pooled client whose transport replays a request
// after transient dial or timeout failures. HTTP error statuses are returned
// as-is for the caller to classify.
func NewHTTPClient(opts ClientOptions) *http.Client {
	opts = opts.withDefaults()
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	pool := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &replayTransport{next: pool, retries: opts.DialRetries, interval: opts.RetryInterval},
	}
}

type replayTransport struct {
	next     http.RoundTripper
	retries  int
	interval time.Duration
}

func (t *replayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries && netutil.ShouldRetry(err); attempt++ {
		retry, rerr := rewind(req)
		if rerr != nil {
			return nil, err
		}
		logger.Debug(req.Context(), "http", "http.retry",
			slog.String("status", "retry"),
			slog.String("host", req.URL.Host),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		timer := time.NewTimer(t.interval * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		resp, err = t.next.RoundTrip(retry)
	}
	return resp, err
}

// rewind clones req with a fresh body. Requests whose body cannot be
// replayed are not retried.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, http.ErrBodyReadAfterClose
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
