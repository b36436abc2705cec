// Package session stores the OAuth2 client context of a user session
// between requests: the access token obtained for the user and the pending
// authorization-redirect state.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// ErrNotFound is returned by Store.Load for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store persists sessions. Implementations must be safe for concurrent use
// and must never hand out a Session that another request can observe.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

var _ core.ClientContext = (*Session)(nil)

// Session is the per-request view of one user session. It implements
// core.ClientContext and is not safe for concurrent use.
type Session struct {
	id       string
	isNew    bool
	dirty    bool
	token    *core.AccessToken
	redirect *core.RedirectState
}

// New returns a fresh, unsaved session with a random id.
func New() *Session {
	return &Session{id: uuid.NewString(), isNew: true}
}

func (s *Session) ID() string { return s.id }

// IsNew reports whether the session has never been saved.
func (s *Session) IsNew() bool { return s.isNew }

// Dirty reports whether the session changed since it was loaded or saved.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) AccessToken() *core.AccessToken { return s.token }

func (s *Session) SetAccessToken(token *core.AccessToken) {
	s.token = token
	s.dirty = true
}

func (s *Session) RedirectState() *core.RedirectState { return s.redirect }

func (s *Session) SetRedirectState(state *core.RedirectState) {
	s.redirect = state
	s.dirty = true
}

func (s *Session) RemoveRedirectState(stateKey string) {
	if s.redirect == nil {
		return
	}
	if stateKey != "" && s.redirect.StateKey != stateKey {
		return
	}
	s.redirect = nil
	s.dirty = true
}

func (s *Session) saved() {
	s.isNew = false
	s.dirty = false
}

// snapshot is the stored form of a session. Stores keep snapshots rather
// than *Session so concurrent requests of one session never share state.
type snapshot struct {
	ID       string         `json:"id"`
	Token    *tokenRecord   `json:"token,omitempty"`
	Redirect *redirectState `json:"redirect,omitempty"`
}

type tokenRecord struct {
	Value  string    `json:"value"`
	Type   string    `json:"type,omitempty"`
	Expiry time.Time `json:"expiry,omitempty"`
}

type redirectState struct {
	StateKey     string    `json:"stateKey"`
	PreservedURL string    `json:"preservedUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Session) snapshot() snapshot {
	snap := snapshot{ID: s.id}
	if s.token != nil {
		snap.Token = &tokenRecord{Value: s.token.Value, Type: s.token.Type, Expiry: s.token.Expiry}
	}
	if s.redirect != nil {
		snap.Redirect = &redirectState{
			StateKey:     s.redirect.StateKey,
			PreservedURL: s.redirect.PreservedURL,
			CreatedAt:    s.redirect.CreatedAt,
		}
	}
	return snap
}

func fromSnapshot(snap snapshot) *Session {
	s := &Session{id: snap.ID}
	if snap.Token != nil {
		s.token = &core.AccessToken{Value: snap.Token.Value, Type: snap.Token.Type, Expiry: snap.Token.Expiry}
	}
	if snap.Redirect != nil {
		s.redirect = &core.RedirectState{
			StateKey:     snap.Redirect.StateKey,
			PreservedURL: snap.Redirect.PreservedURL,
			CreatedAt:    snap.Redirect.CreatedAt,
		}
	}
	return s
}
