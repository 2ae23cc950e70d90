// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"
)

// FakeClock is a manually advanced clock. Pass clock.Now wherever a func() time.Time is accepted.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// TokenResponse is what [TokenServer] answers for one grant type.
//
// A zero Status means 200. Non-200 responses send an OAuth error body.
type TokenResponse struct {
	Status       int
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// TokenServer is a fake OAuth token endpoint that records every grant it serves.
type TokenServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]TokenResponse
	grants    []string
	forms     []url.Values
	basicAuth []bool
}

// NewTokenServer starts a token endpoint; unconfigured grants get a 400 invalid_grant.
func NewTokenServer(t *testing.T) *TokenServer {
	t.Helper()
	s := &TokenServer{responses: make(map[string]TokenResponse)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// TokenURL is the full token endpoint URL.
func (s *TokenServer) TokenURL() string { return s.URL + "/api/token" }

// Respond configures the reply for grant ("refresh_token", "client_credentials", "authorization_code").
func (s *TokenServer) Respond(grant string, r TokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[grant] = r
}

// Grants lists the grant types requested so far, in order.
func (s *TokenServer) Grants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.grants...)
}

// Calls returns the number of token requests served.
func (s *TokenServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.grants)
}

// LastForm returns the form values of the most recent request.
func (s *TokenServer) LastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	return s.forms[len(s.forms)-1]
}

// AllBasicAuth reports whether every request carried client credentials in the Authorization header.
func (s *TokenServer) AllBasicAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ok := range s.basicAuth {
		if !ok {
			return false
		}
	}
	return true
}

func (s *TokenServer) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, _, hasBasic := r.BasicAuth()
	grant := r.PostForm.Get("grant_type")

	s.mu.Lock()
	s.grants = append(s.grants, grant)
	s.forms = append(s.forms, r.PostForm)
	s.basicAuth = append(s.basicAuth, hasBasic)
	resp, ok := s.responses[grant]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		resp = TokenResponse{Status: http.StatusBadRequest}
	}
	if resp.Status != 0 && resp.Status != http.StatusOK {
		w.WriteHeader(resp.Status)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "rejected by test server"})
		return
	}

	body := map[string]any{
		"access_token": resp.AccessToken,
		"token_type":   "Bearer",
	}
	if resp.ExpiresIn > 0 {
		body["expires_in"] = resp.ExpiresIn
	}
	if resp.RefreshToken != "" {
		body["refresh_token"] = resp.RefreshToken
	}
	json.NewEncoder(w).Encode(body)
}

// EncodeImage renders a w×h image of the given format ("png", "jpeg", "gif") where fill picks each pixel's color.
func EncodeImage(t *testing.T, format string, w, h int, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, fill(x, y))
		}
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		t.Fatalf("unsupported image format %q", format)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", format, err)
	}
	return buf.Bytes()
}

// SolidImage returns a PNG filled with a single color.
func SolidImage(t *testing.T, c color.Color) []byte {
	t.Helper()
	return EncodeImage(t, "png", 32, 32, func(int, int) color.Color { return c })
}

// ServeBytes starts a server answering every request with body and the given content type.
// The returned counter reports how many requests were served.
func ServeBytes(t *testing.T, contentType string, body []byte) (*httptest.Server, func() int) {
	t.Helper()
	var mu sync.Mutex
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.Header().Set("Content-Type", contentType)
		io.Copy(w, bytes.NewReader(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return count
	}
}
