package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/melodyhue/internal/shared"
	tu "github.com/desertthunder/melodyhue/internal/testing"
)

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com/", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("Defaults", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != spotifyAPIURL {
				t.Errorf("expected default baseURL %s, got %s", spotifyAPIURL, srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Returns Status And Body", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.Header.Get("Authorization") != "Bearer abc" {
					t.Errorf("missing bearer token")
				}
				w.Header().Set("X-Test", "yes")
				w.WriteHeader(http.StatusAccepted)
				w.Write([]byte("body"))
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/test", "abc")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusAccepted || string(resp.Body) != "body" || resp.Headers.Get("X-Test") != "yes" {
				t.Errorf("unexpected response %+v", resp)
			}
		})

		t.Run("No Token Sends No Authorization", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "" {
					t.Error("unexpected Authorization header")
				}
			}))
			defer server.Close()

			if _, err := NewAPIService(server.URL, nil).Get(context.Background(), "/", ""); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			_, err := NewAPIService("http://example.com", nil).Get(context.Background(), "/test\x00invalid", "")
			if err == nil || !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed HTTP Request Is Transient", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}

			_, err := NewAPIService("http://example.com", client).Get(context.Background(), "/test", "")
			if !errors.Is(err, shared.ErrTransient) {
				t.Errorf("expected ErrTransient, got %v", err)
			}
		})

		t.Run("Failed Body Read", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(&tu.FCloser{}), Header: http.Header{}}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}

			_, err := NewAPIService("http://example.com", client).Get(context.Background(), "/test", "")
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected read error, got %v", err)
			}
		})
	})

	t.Run("Download", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			server, count := tu.ServeBytes(t, "image/png", []byte("pixels"))

			body, err := NewAPIService("", server.Client()).Download(context.Background(), server.URL+"/img", 100)
			if err != nil || string(body) != "pixels" {
				t.Errorf("Download() = %q, %v", body, err)
			}
			if count() != 1 {
				t.Errorf("expected 1 request, got %d", count())
			}
		})

		t.Run("Too Large", func(t *testing.T) {
			server, _ := tu.ServeBytes(t, "image/png", []byte(strings.Repeat("x", 20)))

			_, err := NewAPIService("", server.Client()).Download(context.Background(), server.URL, 10)
			if err == nil || !strings.Contains(err.Error(), "exceeds") {
				t.Errorf("expected size error, got %v", err)
			}
		})

		t.Run("Non-2xx", func(t *testing.T) {
			server := httptest.NewServer(http.NotFoundHandler())
			defer server.Close()

			_, err := NewAPIService("", server.Client()).Download(context.Background(), server.URL, 10)
			if err == nil || !strings.Contains(err.Error(), "status 404") {
				t.Errorf("expected status error, got %v", err)
			}
		})
	})
}
