package artifacts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPSource downloads objects below a base URL.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource returns a source for baseURL using http.DefaultClient.
func NewHTTPSource(baseURL string) (*HTTPSource, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid artifacts base URL: %w", err)
	}
	return &HTTPSource{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: http.DefaultClient}, nil
}

func (s *HTTPSource) Name() string { return s.BaseURL }

// Open issues a GET with a Range header when offset is positive.
func (s *HTTPSource) Open(ctx context.Context, object string, offset int64) (io.ReadCloser, int64, bool, error) {
	fileURL, err := url.JoinPath(s.BaseURL, object)
	if err != nil {
		return nil, 0, false, fmt.Errorf("error parsing the file URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("error creating the file request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	res, err := s.Client.Do(req)
	if err != nil {
		return nil, 0, false, fmt.Errorf("error performing the request: %w", err)
	}
	switch res.StatusCode {
	case http.StatusOK:
		return res.Body, res.ContentLength, false, nil
	case http.StatusPartialContent:
		return res.Body, contentRangeSize(res.Header.Get("Content-Range"), offset+res.ContentLength), true, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// the partial file is stale or complete; start over
		res.Body.Close()
		if offset > 0 {
			return s.Open(ctx, object, 0)
		}
		return nil, 0, false, &StatusError{URL: fileURL, StatusCode: res.StatusCode}
	default:
		res.Body.Close()
		return nil, 0, false, &StatusError{URL: fileURL, StatusCode: res.StatusCode}
	}
}

// contentRangeSize parses the total of a "bytes a-b/total" header.
func contentRangeSize(header string, fallback int64) int64 {
	_, total, ok := strings.Cut(header, "/")
	if !ok || total == "*" {
		return fallback
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// StatusError is an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error downloading file %s: http status: %d", e.URL, e.StatusCode)
}
