package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/melodyhue/internal/shared"
)

const DefaultCallbackPath = "/callback"

// CodeExchanger trades an authorization code for tokens. Implemented by the integration facade.
type CodeExchanger interface {
	HandleCallback(ctx context.Context, code string) bool
}

// OAuthResult is the outcome of one authorization attempt.
type OAuthResult struct {
	err error
}

func (o OAuthResult) Error() error {
	return o.err
}

// OAuthHandler serves the redirect URI of the authorization code flow.
type OAuthHandler struct {
	exchanger CodeExchanger
	state     string
	path      string

	results chan OAuthResult
	once    sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewOAuthHandler serves the path of redirectURI. state must be the value sent with the consent URL.
func NewOAuthHandler(exchanger CodeExchanger, state, redirectURI string) *OAuthHandler {
	return &OAuthHandler{
		exchanger: exchanger,
		state:     state,
		path:      CallbackPath(redirectURI),
		results:   make(chan OAuthResult, 1),
	}
}

// CallbackPath returns the path component of redirectURI, or [DefaultCallbackPath].
func CallbackPath(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultCallbackPath
	}
	return u.Path
}

// ListenAddr returns the host:port to bind for redirectURI.
func ListenAddr(redirectURI, fallback string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return fallback
	}
	if u.Port() == "" {
		return u.Hostname() + ":80"
	}
	return u.Host
}

func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP checks state, exchanges the code and reports the outcome through [OAuthHandler.Result].
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.Send(OAuthResult{err: fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if !h.exchanger.HandleCallback(r.Context(), code) {
		h.Send(OAuthResult{err: fmt.Errorf("%w: token exchange failed", shared.ErrAuthFailed)})
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	h.Send(OAuthResult{})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// Send delivers the first result; later calls are ignored.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>melodyhue connected</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #25d865; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #191414; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Spotify connected</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
