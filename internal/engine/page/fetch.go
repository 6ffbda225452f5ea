package page

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/dshills/webinspector/internal/inspector/resources"
)

// DefaultMaxBody caps response bodies read by HTTPFetcher.
const DefaultMaxBody = 8 << 20

// Fetched is a completed load.
type Fetched struct {
	Response resources.Response
	Body     string
}

// Fetcher performs network loads for a page. Fetch is called off the loop
// goroutine for asynchronous loads and must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, req resources.Request) (*Fetched, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req resources.Request) (*Fetched, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req resources.Request) (*Fetched, error) {
	return f(ctx, req)
}

// HTTPFetcher loads http, https and file URLs.
type HTTPFetcher struct {
	Client  *http.Client
	MaxBody int64
}

// DefaultFetcher returns an HTTPFetcher with a 30 second client timeout.
func DefaultFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &http.Client{Timeout: 30 * time.Second},
		MaxBody: DefaultMaxBody,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req resources.Request) (*Fetched, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "file":
		return f.fetchFile(u)
	case "http", "https":
		return f.fetchHTTP(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (f *HTTPFetcher) fetchFile(u *url.URL) (*Fetched, error) {
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(u.Path))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	text := decodeText(data, mimeType)
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = base
	}
	return &Fetched{
		Response: resources.Response{
			URL:                   u.String(),
			MIMEType:              mimeType,
			StatusCode:            http.StatusOK,
			StatusText:            http.StatusText(http.StatusOK),
			ExpectedContentLength: int64(len(data)),
		},
		Body: text,
	}, nil
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, req resources.Request) (*Fetched, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := f.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	text := decodeText(data, mimeType)
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = base
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &Fetched{
		Response: resources.Response{
			URL:                   resp.Request.URL.String(),
			MIMEType:              mimeType,
			StatusCode:            resp.StatusCode,
			StatusText:            http.StatusText(resp.StatusCode),
			Headers:               headers,
			ExpectedContentLength: resp.ContentLength,
		},
		Body: text,
	}, nil
}

// decodeText converts textual bodies to UTF-8 using the charset from
// contentType or, for HTML, the document's meta tags. Other bodies are
// returned unchanged.
func decodeText(data []byte, contentType string) string {
	if !strings.HasPrefix(contentType, "text/") && !strings.Contains(contentType, "javascript") {
		return string(data)
	}
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" {
		return string(data)
	}
	text, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(text)
}
