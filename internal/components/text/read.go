package text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// MaxReadSize bounds the size of a document read by ReadText.
const MaxReadSize = 64 << 20

// ReadTextDescriptor describes ReadText.
var ReadTextDescriptor = component.Descriptor{
	Name:        "ReadText",
	Description: "Reads the text found at a file path or http(s) URL",
	Inputs:      []string{portLocation},
	Outputs:     []string{portLocation, portText},
	Properties: map[string]string{
		"timeout":             "30s",
		"max_attempts":        "1",
		"retry_delay":         "1s",
		"retry_on_timeout":    "true",
		"retry_on_http_error": "",
	},
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned HTTP %d for %s", e.StatusCode, e.URL)
}

// ReadText fetches a document. Timeouts and the listed HTTP status codes
// are retried up to max_attempts times.
type ReadText struct {
	client         *http.Client
	maxAttempts    int
	retryDelay     time.Duration
	retryOnTimeout bool
	retryCodes     []int
}

// NewReadText creates the component.
func NewReadText() component.Component { return &ReadText{} }

func (r *ReadText) Initialize(_ context.Context, props *component.Properties) error {
	var cfg struct {
		Timeout        time.Duration `prop:"timeout"`
		MaxAttempts    int           `prop:"max_attempts"`
		RetryDelay     time.Duration `prop:"retry_delay"`
		RetryOnTimeout bool          `prop:"retry_on_timeout"`
	}
	if err := props.Decode(&cfg); err != nil {
		return err
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Millisecond
	}

	r.retryCodes = nil
	for _, s := range props.List("retry_on_http_error", ",") {
		code, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("property retry_on_http_error: %w", err)
		}
		r.retryCodes = append(r.retryCodes, code)
	}

	if r.client == nil {
		r.client = &http.Client{}
	}
	r.client.Timeout = cfg.Timeout
	r.maxAttempts = cfg.MaxAttempts
	r.retryDelay = cfg.RetryDelay
	r.retryOnTimeout = cfg.RetryOnTimeout
	return nil
}

func (r *ReadText) Execute(ctx context.Context, cc *component.Context) error {
	location, err := datatypes.ParseAsString(cc.Input(portLocation))
	if err != nil {
		return err
	}

	var text string
	if isRemote(location) {
		backoff := retry.WithMaxRetries(uint64(r.maxAttempts-1), retry.NewConstant(r.retryDelay))
		attempt := 0
		text, err = retry.DoValue(ctx, backoff, func(ctx context.Context) (string, error) {
			attempt++
			cc.Logger().Debug("fetching", "url", location, "attempt", attempt)
			s, err := r.fetch(ctx, location)
			if err != nil && r.retryable(err) {
				cc.Logger().Warn("fetch failed", "url", location, "attempt", attempt, "error", err)
				return "", retry.RetryableError(err)
			}
			return s, err
		})
	} else {
		text, err = readFile(location)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", location, err)
	}

	if err := cc.Push(portLocation, datatypes.NewStrings(location)); err != nil {
		return err
	}
	return cc.Push(portText, datatypes.NewStrings(text))
}

func (r *ReadText) fetch(ctx context.Context, location string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "flowkit/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{URL: location, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxReadSize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

func (r *ReadText) retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return slices.Contains(r.retryCodes, httpErr.StatusCode)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return r.retryOnTimeout
	}
	return false
}

func (r *ReadText) Dispose(context.Context) error { return nil }

func isRemote(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// readFile accepts plain paths and file:// URLs.
func readFile(location string) (string, error) {
	path := location
	if u, err := url.Parse(location); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(io.LimitReader(f, MaxReadSize))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
