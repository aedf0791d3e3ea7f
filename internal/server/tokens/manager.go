// Package tokens issues, validates and revokes the capability tokens that
// gate downloads, public links and video streaming.
//
// Download and video-stream tokens are signed JWTs that are also recorded in
// the Store, so they expire on their own yet can be revoked early. Public
// and one-time links are opaque random strings; at most one link is live per
// file and one-time links are consumed with an atomic take.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/auth"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// linkTokenBytes is the entropy of public and one-time links.
const linkTokenBytes = 32

// Store persists tokens. Implementations must make Take and ReplaceLink atomic.
type Store interface {
	Save(ctx context.Context, t *models.AccessToken) error
	ReplaceLink(ctx context.Context, t *models.AccessToken) error
	Get(ctx context.Context, token string) (*models.AccessToken, error)
	Take(ctx context.Context, token string, kind models.TokenKind) (*models.AccessToken, error)
	Delete(ctx context.Context, token string) error
	DeleteLinks(ctx context.Context, subject string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Options configures token lifetimes. A zero LinkTTL makes links permanent.
type Options struct {
	SecretKey   string
	DownloadTTL time.Duration
	VideoTTL    time.Duration
	LinkTTL     time.Duration
}

// ValidationContext carries what a presented token is checked against.
// Empty fields are not checked.
type ValidationContext struct {
	UserID   string
	FileID   string
	ClientID string
}

// Observer is notified of every validation outcome.
type Observer func(kind models.TokenKind, err error)

// Manager is the token manager.
type Manager struct {
	store    Store
	secret   []byte
	opts     Options
	now      func() time.Time
	observer Observer
}

// NewManager returns a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	return &Manager{
		store:  store,
		secret: []byte(opts.SecretKey),
		opts:   opts,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// SetObserver installs a validation observer (metrics).
func (m *Manager) SetObserver(o Observer) { m.observer = o }

func (m *Manager) observe(kind models.TokenKind, err error) {
	if m.observer != nil {
		m.observer(kind, err)
	}
}

func (m *Manager) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	e := m.now().Add(ttl)
	return &e
}

func (m *Manager) issueScoped(ctx context.Context, userID string, kind models.TokenKind, clientID string, ttl time.Duration) (string, error) {
	jti, err := common.MakeRandHexString(16)
	if err != nil {
		return "", err
	}
	tok, err := auth.GenerateScopedToken(userID, kind, clientID, jti, m.secret, ttl)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	t := &models.AccessToken{
		Token:     tok,
		Kind:      kind,
		UserID:    userID,
		Subject:   userID,
		ClientID:  clientID,
		ExpiresAt: m.expiry(ttl),
	}
	if err := m.store.Save(ctx, t); err != nil {
		return "", err
	}
	return tok, nil
}

// IssueDownloadToken returns a short-lived token scoped to userID.
func (m *Manager) IssueDownloadToken(ctx context.Context, userID string) (string, error) {
	return m.issueScoped(ctx, userID, models.TokenDownload, "", m.opts.DownloadTTL)
}

// IssueVideoStreamToken returns a token bound to clientUUID.
func (m *Manager) IssueVideoStreamToken(ctx context.Context, userID, clientUUID string) (string, error) {
	if clientUUID == "" {
		return "", fmt.Errorf("missing client id: %w", common.ErrorBadInput)
	}
	return m.issueScoped(ctx, userID, models.TokenVideo, clientUUID, m.opts.VideoTTL)
}

func (m *Manager) issueLink(ctx context.Context, userID, fileID string, kind models.TokenKind) (string, error) {
	tok, err := common.MakeRandHexString(linkTokenBytes)
	if err != nil {
		return "", err
	}
	t := &models.AccessToken{
		Token:     tok,
		Kind:      kind,
		UserID:    userID,
		Subject:   fileID,
		ExpiresAt: m.expiry(m.opts.LinkTTL),
	}
	if err := m.store.ReplaceLink(ctx, t); err != nil {
		return "", err
	}
	return tok, nil
}

// IssuePublicLink returns a new public link for fileID. Any previous link of
// the file stops validating at the same instant.
func (m *Manager) IssuePublicLink(ctx context.Context, userID, fileID string) (string, error) {
	return m.issueLink(ctx, userID, fileID, models.TokenPublic)
}

// IssueOneTimePublicLink returns a single-use link for fileID, replacing any
// previous link of the file.
func (m *Manager) IssueOneTimePublicLink(ctx context.Context, userID, fileID string) (string, error) {
	return m.issueLink(ctx, userID, fileID, models.TokenOneTime)
}

// Revoke deletes a token. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}

// RevokeByUser deletes a token on behalf of userID. A missing token is not
// an error; a token of another user is Forbidden and a video token bound to
// another client is a ClientMismatch.
func (m *Manager) RevokeByUser(ctx context.Context, userID, token, clientUUID string) error {
	t, err := m.store.Get(ctx, token)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.UserID != userID {
		return common.ErrorForbidden
	}
	if t.ClientID != "" && t.ClientID != clientUUID {
		return common.ErrClientMismatch
	}
	return m.store.Delete(ctx, token)
}

// RevokeLinks drops the public and one-time links of fileID.
func (m *Manager) RevokeLinks(ctx context.Context, fileID string) error {
	return m.store.DeleteLinks(ctx, fileID)
}

// RevokeAll drops every token of userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	return m.store.DeleteByUser(ctx, userID)
}

// Purge removes expired tokens from the store.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// Validate checks token against kind and vc and returns the stored token.
// Failures are ErrTokenExpired, ErrorNotFound (unknown or revoked),
// ErrClientMismatch, ErrInvalidToken or ErrorForbidden. One-time links are
// consumed by a successful validation.
func (m *Manager) Validate(ctx context.Context, token string, kind models.TokenKind, vc ValidationContext) (t *models.AccessToken, err error) {
	defer func() { m.observe(kind, err) }()

	if token == "" {
		return nil, common.ErrInvalidToken
	}

	if kind.IsLink() {
		return m.validateLink(ctx, token, vc.FileID, kind == models.TokenOneTime, kind)
	}

	claims, err := auth.ParseToken(token, m.secret)
	if err != nil {
		return nil, err
	}
	if claims.Kind != string(kind) {
		return nil, common.ErrInvalidToken
	}

	t, err = m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if t.Kind != kind {
		return nil, common.ErrInvalidToken
	}
	if t.ExpiredAt(m.now()) {
		return nil, common.ErrTokenExpired
	}
	if vc.UserID != "" && t.UserID != vc.UserID {
		return nil, common.ErrorForbidden
	}
	if kind == models.TokenVideo && t.ClientID != vc.ClientID {
		return nil, common.ErrClientMismatch
	}
	return t, nil
}

// ValidateLink accepts either a public or a one-time link for fileID. When
// consume is set a one-time link is taken; of concurrent callers exactly one
// succeeds and the others get ErrorNotFound.
func (m *Manager) ValidateLink(ctx context.Context, fileID, token string, consume bool) (t *models.AccessToken, err error) {
	defer func() {
		kind := models.TokenPublic
		if t != nil {
			kind = t.Kind
		}
		m.observe(kind, err)
	}()
	if token == "" {
		return nil, common.ErrInvalidToken
	}
	return m.validateLink(ctx, token, fileID, consume, "")
}

// validateLink implements link validation; want restricts the accepted kind
// when non-empty.
func (m *Manager) validateLink(ctx context.Context, token, fileID string, consume bool, want models.TokenKind) (*models.AccessToken, error) {
	t, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !t.Kind.IsLink() || (want != "" && t.Kind != want) {
		return nil, common.ErrorNotFound
	}
	if fileID != "" && t.Subject != fileID {
		return nil, common.ErrorNotFound
	}
	if t.ExpiredAt(m.now()) {
		return nil, common.ErrTokenExpired
	}
	if t.Kind == models.TokenOneTime && consume {
		return m.store.Take(ctx, token, models.TokenOneTime)
	}
	return t, nil
}
