// Package session owns the auth lifecycle as an explicitly constructed
// object handed to the components that need it, replacing the ambient
// singleton the app grew up with. Tokens are consumed, never minted: the
// auth service signs them, this client parses the claims it needs.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/errs"
	"github.com/mahaj/convosync/pkg/model"
)

// StateFunc observes sign-in/sign-out transitions. user is nil after
// sign-out.
type StateFunc func(user *model.User)

type Session struct {
	authURL string
	http    *http.Client
	log     zerolog.Logger

	mu        sync.Mutex
	token     string
	user      *model.User
	listeners []StateFunc
}

func New(authURL string, log zerolog.Logger) *Session {
	return &Session{
		authURL: strings.TrimRight(authURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "session").Logger(),
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// OnAuthStateChanged registers a listener, fired immediately with the
// current state and again on every transition.
func (s *Session) OnAuthStateChanged(fn StateFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	user := s.user
	s.mu.Unlock()
	fn(user)
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	resp, err := s.post(ctx, "/login", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return s.adopt(resp)
}

func (s *Session) SignUp(ctx context.Context, email, password, name, username string) (*model.User, error) {
	resp, err := s.post(ctx, "/signup", credentials{Email: email, Password: password, Name: name, Username: username})
	if err != nil {
		return nil, err
	}
	return s.adopt(resp)
}

func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	hadUser := s.user != nil
	s.token = ""
	s.user = nil
	listeners := append([]StateFunc(nil), s.listeners...)
	s.mu.Unlock()

	if hadUser {
		for _, fn := range listeners {
			fn(nil)
		}
	}
}

func (s *Session) SendPasswordReset(ctx context.Context, email string) error {
	_, err := s.post(ctx, "/password-reset", credentials{Email: email})
	return err
}

// Token returns the bearer token for the gateway handshake.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", errs.ErrNotSignedIn
	}
	return s.token, nil
}

// User returns the signed-in user, nil when signed out.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// adopt validates the token claims, stores the session and notifies
// listeners.
func (s *Session) adopt(resp authResponse) (*model.User, error) {
	claims, err := ParseClaims(resp.Token)
	if err != nil {
		return nil, err
	}
	user := resp.User
	if user.ID == "" {
		user.ID = claims.UserID
	}

	s.mu.Lock()
	s.token = resp.Token
	s.user = &user
	listeners := append([]StateFunc(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info().Str("user", user.ID).Msg("signed in")
	for _, fn := range listeners {
		u := user
		fn(&u)
	}
	return &user, nil
}

func (s *Session) post(ctx context.Context, path string, body credentials) (authResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return authResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL+path, bytes.NewReader(payload))
	if err != nil {
		return authResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return authResponse{}, errs.Wrap(errs.Network, err, "auth %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return authResponse{}, errs.New(errs.Unauthorized, "auth rejected")
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return authResponse{}, errs.New(errs.Unknown, fmt.Sprintf("auth %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return authResponse{}, err
	}
	return out, nil
}
