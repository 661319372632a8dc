package bulk

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is the polling interval used when none is configured.
	DefaultInterval = 5 * time.Second

	// DefaultTimeout is the per-request deadline used when none is configured.
	DefaultTimeout = 30 * time.Second

	contentTypeJSON = "application/json"
	contentTypeCSV  = "text/csv"
)

// Request is a single call against the bulk base URL.
type Request struct {
	Method string
	Path   string            // relative to the bulk base URL, e.g. "ingest/750.../batches"
	Header map[string]string // overlays the transport's default headers for this call only
	Body   any               // []byte is sent as-is, anything else is encoded as JSON
}

// Response is a completed 2xx response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Text returns the body as UTF-8 text.
func (r *Response) Text() string {
	return string(r.Body)
}

// Transport issues authenticated requests. Implementations must return a
// *domain.TransportError for non-2xx responses and failed round trips.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// RestyTransport is the HTTP Transport backed by a shared resty client.
type RestyTransport struct {
	client  *resty.Client
	limiter *rate.Limiter // nil when unthrottled
}

// TransportConfig holds connection settings for RestyTransport.
type TransportConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration

	// RequestsPerSecond throttles outgoing calls when positive; Burst
	// defaults to 1.
	RequestsPerSecond float64
	Burst             int
}

// NewRestyTransport creates a transport whose default headers are fixed at
// construction; per-request headers never touch them.
func NewRestyTransport(cfg *TransportConfig) *RestyTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Authorization", "Bearer "+cfg.AccessToken)
	client.SetHeader("Content-Type", contentTypeJSON)
	client.SetHeader("Accept", contentTypeJSON)
	client.SetTimeout(timeout)
	client.SetLogger(logger.GetDefault())

	t := &RestyTransport{client: client}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return t
}

// Do executes req and maps failures onto *domain.TransportError.
func (t *RestyTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &domain.TransportError{Method: req.Method, Path: req.Path, Err: err}
		}
	}

	r := t.client.R().SetContext(ctx)
	if len(req.Header) > 0 {
		r.SetHeaders(req.Header)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return nil, &domain.TransportError{Method: req.Method, Path: req.Path, Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, domain.NewHTTPError(req.Method, req.Path, resp.StatusCode(), resp.Body())
	}

	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}
