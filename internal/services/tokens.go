package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// ExpirySkew is subtracted from every issued token lifetime.
	ExpirySkew = 60 * time.Second

	defaultExpiresIn     = 3600 * time.Second
	defaultTokenTimeout  = 10 * time.Second
	showDialogParam      = "show_dialog"
	grantRefreshToken    = "refresh_token"
	grantClientCreds     = "client_credentials"
	grantAuthorizationCd = "authorization_code"
)

var spotifyScopes = []string{"user-read-currently-playing", "user-read-playback-state"}

// TokenStoreOptions configures a [TokenStore]. Zero values select Spotify's endpoints,
// [http.DefaultClient], the wall clock and no persistence.
type TokenStoreOptions struct {
	RedirectURI string
	AuthURL     string
	TokenURL    string
	ShowDialog  bool

	HTTPClient *http.Client
	File       *TokenFile
	Listener   RotationListener
	Logger     *log.Logger
	Now        Clock
	Timeout    time.Duration
}

// TokenStore owns the Spotify OAuth credentials and their refresh and persistence.
//
// State is guarded by mu; exchangeMu serializes network exchanges so concurrent callers
// wait for a single in-flight exchange and then reuse its result.
type TokenStore struct {
	mu    sync.RWMutex
	creds models.Credentials

	exchangeMu sync.Mutex

	redirectURI string
	authURL     string
	tokenURL    string
	showDialog  bool

	httpClient *http.Client
	file       *TokenFile
	listener   RotationListener
	logger     *log.Logger
	now        Clock
	timeout    time.Duration
}

// NewTokenStore builds a store and loads any persisted token snapshot once.
func NewTokenStore(opts TokenStoreOptions) *TokenStore {
	s := &TokenStore{
		redirectURI: opts.RedirectURI,
		authURL:     opts.AuthURL,
		tokenURL:    opts.TokenURL,
		showDialog:  opts.ShowDialog,
		httpClient:  opts.HTTPClient,
		file:        opts.File,
		listener:    opts.Listener,
		logger:      shared.WithLogger(opts.Logger, "component", "tokens"),
		now:         opts.Now,
		timeout:     opts.Timeout,
	}
	if s.authURL == "" {
		s.authURL = spotifyAuthURL
	}
	if s.tokenURL == "" {
		s.tokenURL = spotifyTokenURL
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.timeout <= 0 {
		s.timeout = defaultTokenTimeout
	}

	s.loadPersisted()
	return s
}

func (s *TokenStore) loadPersisted() {
	if s.file == nil {
		return
	}

	tokens, path, err := s.file.Load()
	if err != nil {
		s.logger.Warn("could not load persisted tokens", "error", err)
	}
	if tokens == nil {
		return
	}

	s.mu.Lock()
	s.creds.AccessToken = tokens.AccessToken
	s.creds.RefreshToken = tokens.RefreshToken
	s.creds.ExpiresAt = tokens.Expiry()
	s.creds.Enabled = s.creds.Valid(s.now.now())
	s.mu.Unlock()

	s.logger.Debug("loaded persisted tokens", "path", path, "expires_at", tokens.Expiry())
}

// Configure stores the client identity and an optional refresh token seed, then attempts acquisition.
//
// A refresh token loaded from disk wins over the seed; it is the more recent of the two after a rotation.
func (s *TokenStore) Configure(ctx context.Context, clientID, clientSecret, refreshToken string) bool {
	s.mu.Lock()
	s.creds.ClientID = clientID
	s.creds.ClientSecret = clientSecret
	if refreshToken != "" && s.creds.RefreshToken == "" {
		s.creds.RefreshToken = refreshToken
	}
	configured := s.creds.Configured()
	s.mu.Unlock()

	if !configured {
		s.logger.Warn("spotify client id or secret missing")
		return false
	}
	return s.Acquire(ctx)
}

// Acquire makes sure a usable access token is held. It is idempotent: a still-valid token
// (in memory or loaded from disk) is reused without a network call. Otherwise the refresh-token
// grant is preferred over client credentials. On failure prior state is left untouched.
func (s *TokenStore) Acquire(ctx context.Context) bool {
	if _, err := s.acquire(ctx); err != nil {
		s.logger.Warn("token acquisition failed", "error", err)
		return false
	}
	return true
}

// AccessToken returns a valid access token, acquiring one when the current token has expired.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	return s.acquire(ctx)
}

func (s *TokenStore) acquire(ctx context.Context) (string, error) {
	if tok, ok := s.validToken(); ok {
		return tok, nil
	}

	var rotated string
	tok, err := func() (string, error) {
		s.exchangeMu.Lock()
		defer s.exchangeMu.Unlock()

		// Another caller may have finished an exchange while we waited.
		if tok, ok := s.validToken(); ok {
			return tok, nil
		}

		s.mu.RLock()
		creds := s.creds
		s.mu.RUnlock()

		if !creds.Configured() {
			return "", shared.ErrNotConfigured
		}

		if creds.RefreshToken != "" {
			tok, err := s.refreshGrant(ctx, creds)
			if err == nil {
				rotated = s.apply(tok, creds.RefreshToken, grantRefreshToken)
				return tok.AccessToken, nil
			}
			if errors.Is(err, shared.ErrAuthFailed) {
				s.dropRefreshToken(creds.RefreshToken)
				s.logger.Warn("refresh token rejected, interactive authorization required", "error", err)
			} else {
				s.logger.Warn("refresh token exchange failed", "error", err)
			}
		}

		tok, err := s.clientCredentialsGrant(ctx, creds)
		if err != nil {
			return "", err
		}
		s.apply(tok, "", grantClientCreds)
		return tok.AccessToken, nil
	}()

	s.notifyRotation(rotated)
	return tok, err
}

// Refresh performs the refresh-token grant regardless of the current token's expiry.
func (s *TokenStore) Refresh(ctx context.Context) bool {
	var rotated string
	err := func() error {
		s.exchangeMu.Lock()
		defer s.exchangeMu.Unlock()

		s.mu.RLock()
		creds := s.creds
		s.mu.RUnlock()

		if !creds.Configured() {
			return shared.ErrNotConfigured
		}
		if creds.RefreshToken == "" {
			return shared.ErrNoRefreshToken
		}

		tok, err := s.refreshGrant(ctx, creds)
		if err != nil {
			if errors.Is(err, shared.ErrAuthFailed) {
				s.dropRefreshToken(creds.RefreshToken)
			}
			return err
		}
		rotated = s.apply(tok, creds.RefreshToken, grantRefreshToken)
		return nil
	}()

	s.notifyRotation(rotated)
	if err != nil {
		s.logger.Warn("token refresh failed", "error", err)
		return false
	}
	return true
}

// ExchangeAuthorizationCode completes the interactive flow with the code from the redirect.
func (s *TokenStore) ExchangeAuthorizationCode(ctx context.Context, code string) bool {
	if code == "" {
		s.logger.Warn("authorization code missing")
		return false
	}

	var rotated string
	err := func() error {
		s.exchangeMu.Lock()
		defer s.exchangeMu.Unlock()

		s.mu.RLock()
		creds := s.creds
		s.mu.RUnlock()

		if !creds.Configured() {
			return shared.ErrNotConfigured
		}

		ctx, cancel := s.exchangeContext(ctx)
		defer cancel()

		tok, err := s.oauthConfig(creds).Exchange(ctx, code)
		if err != nil {
			return classifyTokenError(err)
		}
		rotated = s.apply(tok, creds.RefreshToken, grantAuthorizationCd)
		return nil
	}()

	s.notifyRotation(rotated)
	if err != nil {
		s.logger.Error("authorization code exchange failed", "error", err)
		return false
	}
	return true
}

// AuthorizationURL builds the consent URL; "" when the client id or redirect URI is missing.
func (s *TokenStore) AuthorizationURL(state string) string {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()

	if creds.ClientID == "" || s.redirectURI == "" {
		return ""
	}
	return s.oauthConfig(creds).AuthCodeURL(state,
		oauth2.SetAuthURLParam(showDialogParam, strconv.FormatBool(s.showDialog)))
}

// IsAuthenticated reports whether a refresh token is known or the access token is unexpired.
func (s *TokenStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken != "" || s.creds.Valid(s.now.now())
}

// HasUserGrant reports whether a refresh token from a user authorization is known.
// Client-credentials tokens cannot read a user's playback.
func (s *TokenStore) HasUserGrant() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken != ""
}

func (s *TokenStore) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Enabled
}

// Credentials returns a copy of the current state.
func (s *TokenStore) Credentials() models.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Invalidate discards the access token so the next request re-acquires one.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.AccessToken = ""
	s.creds.ExpiresAt = time.Time{}
	s.creds.Enabled = false
}

// Logout forgets all tokens and removes the persisted snapshot. Client identity is kept.
func (s *TokenStore) Logout() bool {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	s.mu.Lock()
	s.creds.AccessToken = ""
	s.creds.RefreshToken = ""
	s.creds.ExpiresAt = time.Time{}
	s.creds.Enabled = false
	s.mu.Unlock()

	if s.file == nil {
		return true
	}
	if err := s.file.Remove(); err != nil {
		s.logger.Error("failed to remove persisted tokens", "error", err)
		return false
	}
	return true
}

func (s *TokenStore) validToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.Valid(s.now.now()) {
		return s.creds.AccessToken, true
	}
	return "", false
}

func (s *TokenStore) oauthConfig(creds models.Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  s.redirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.authURL,
			TokenURL:  s.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (s *TokenStore) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	return context.WithTimeout(ctx, s.timeout)
}

func (s *TokenStore) refreshGrant(ctx context.Context, creds models.Credentials) (*oauth2.Token, error) {
	ctx, cancel := s.exchangeContext(ctx)
	defer cancel()

	tok, err := s.oauthConfig(creds).TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return tok, nil
}

func (s *TokenStore) clientCredentialsGrant(ctx context.Context, creds models.Credentials) (*oauth2.Token, error) {
	ctx, cancel := s.exchangeContext(ctx)
	defer cancel()

	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     s.tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return tok, nil
}

// apply records a freshly issued token and persists it. It returns the new refresh token
// when it differs from previous, "" otherwise.
func (s *TokenStore) apply(tok *oauth2.Token, previous, grant string) string {
	now := s.now.now()

	s.mu.Lock()
	s.creds.AccessToken = tok.AccessToken
	s.creds.ExpiresAt = now.Add(tokenLifetime(tok) - ExpirySkew)
	s.creds.Enabled = true

	var rotated string
	if tok.RefreshToken != "" && tok.RefreshToken != s.creds.RefreshToken {
		s.creds.RefreshToken = tok.RefreshToken
	}
	if tok.RefreshToken != "" && tok.RefreshToken != previous {
		rotated = tok.RefreshToken
	}
	expiresAt := s.creds.ExpiresAt
	snapshot := PersistedTokens{
		AccessToken:  s.creds.AccessToken,
		RefreshToken: s.creds.RefreshToken,
		ExpiresAt:    float64(s.creds.ExpiresAt.Unix()),
	}
	s.mu.Unlock()

	s.logger.Debug("token issued", "grant", grant, "expires_at", expiresAt)

	if s.file != nil {
		if err := s.file.Save(snapshot); err != nil {
			s.logger.Warn("failed to persist tokens", "path", s.file.WritePath(), "error", err)
		}
	}
	return rotated
}

// dropRefreshToken forgets rt unless it was already replaced.
func (s *TokenStore) dropRefreshToken(rt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.RefreshToken == rt {
		s.creds.RefreshToken = ""
	}
}

func (s *TokenStore) notifyRotation(refreshToken string) {
	if refreshToken == "" || s.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rotation listener panicked", "panic", r)
		}
	}()
	s.listener.RefreshTokenRotated(refreshToken)
}

// tokenLifetime reads the lifetime the provider issued, or an hour when it sent none.
// The parsed tok.Expiry is ignored: it is stamped with the wall clock, not the store's clock.
func tokenLifetime(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	for _, key := range []string{"expires_in", "expires"} {
		switch v := tok.Extra(key).(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case string:
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return defaultExpiresIn
}

// classifyTokenError maps a token endpoint failure onto the error taxonomy.
// 400 and 401 mean the grant or client was rejected; everything else is worth retrying later.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %v", shared.ErrTransient, shared.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", shared.ErrTransient, err)
}
