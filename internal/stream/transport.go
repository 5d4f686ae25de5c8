package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("stream rejected the access token")

// StatusError is a non-200 answer to a stream request
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream request failed: %d %s", e.Code, http.StatusText(e.Code))
}

// Conn is one live push connection
type Conn interface {
	// Next blocks until the next event or a transport failure
	Next() (Message, error)
	Close() error
}

// Transport opens push connections authenticated with a bearer token
type Transport interface {
	// Dial returns once the server has acknowledged the connection
	Dial(ctx context.Context, token string) (Conn, error)
}

// SSETransport connects to a text/event-stream endpoint over HTTP
type SSETransport struct {
	URL    string
	Client *http.Client
}

// NewSSETransport creates a transport for url. The client has no overall
// timeout since the response body lives as long as the stream.
func NewSSETransport(url string) *SSETransport {
	rt := http.DefaultTransport.(*http.Transport).Clone()
	rt.ResponseHeaderTimeout = 15 * time.Second
	return &SSETransport{
		URL:    url,
		Client: &http.Client{Transport: rt},
	}
}

func (t *SSETransport) Dial(ctx context.Context, token string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		drain(res.Body)
		return nil, fmt.Errorf("%w (%d)", ErrUnauthorized, res.StatusCode)
	case res.StatusCode != http.StatusOK:
		drain(res.Body)
		return nil, &StatusError{Code: res.StatusCode}
	}

	mediaType, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if !strings.EqualFold(mediaType, "text/event-stream") {
		drain(res.Body)
		return nil, fmt.Errorf("unexpected stream content type %q", res.Header.Get("Content-Type"))
	}

	return &sseConn{body: res.Body, dec: NewDecoder(res.Body)}, nil
}

type sseConn struct {
	body io.ReadCloser
	dec  *Decoder
}

func (c *sseConn) Next() (Message, error) {
	return c.dec.Next()
}

func (c *sseConn) Close() error {
	return c.body.Close()
}

func drain(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, 4096))
	body.Close()
}
