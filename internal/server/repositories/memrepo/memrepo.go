// Package memrepo is an in-memory RepositoryManager. It mirrors the
// semantics of the PostgreSQL repositories closely enough for service and
// transport tests, including cascading folder deletes and atomic token takes.
package memrepo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/dbx"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/folders"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/tokens"
)

// Files lists newest first; insertion order breaks ties between equal
// timestamps.
type Files struct {
	mu    sync.Mutex
	byID  map[string]*models.File
	order map[string]int
	seq   int
}

func (m *Files) Create(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	cp := *f
	m.byID[f.ID] = &cp
	m.order[f.ID] = m.seq
	return nil
}

func (m *Files) get(id string) (*models.File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	cp := *f
	cp.Derive()
	return &cp, true
}

func (m *Files) GetByID(_ context.Context, id string) (*models.File, error) {
	f, ok := m.get(id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return f, nil
}

func (m *Files) filter(pred func(*models.File) bool) []*models.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for _, f := range m.byID {
		if pred(f) {
			cp := *f
			cp.Derive()
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] > m.order[out[j].ID] })
	return out
}

func (m *Files) ListByParent(_ context.Context, ownerID, parentID string) ([]*models.File, error) {
	return m.filter(func(f *models.File) bool { return f.OwnerID == ownerID && f.ParentID == parentID }), nil
}

func (m *Files) ListRecent(_ context.Context, ownerID string, limit int) ([]*models.File, error) {
	out := m.filter(func(f *models.File) bool { return f.OwnerID == ownerID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Files) ListByParents(_ context.Context, ownerID string, parents []string) ([]*models.File, error) {
	set := map[string]bool{}
	for _, p := range parents {
		set[p] = true
	}
	return m.filter(func(f *models.File) bool { return f.OwnerID == ownerID && set[f.ParentID] }), nil
}

func (m *Files) ListByOwner(_ context.Context, ownerID string) ([]*models.File, error) {
	return m.filter(func(f *models.File) bool { return f.OwnerID == ownerID }), nil
}

func (m *Files) update(id string, fn func(*models.File)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(f)
	return nil
}

func (m *Files) SetThumbnail(_ context.Context, id, key string, size int64, iv []byte) error {
	return m.update(id, func(f *models.File) { f.ThumbnailKey, f.ThumbnailSize, f.ThumbnailIV = key, size, iv })
}

func (m *Files) SetLink(_ context.Context, id string, lt models.LinkType, link string) error {
	return m.update(id, func(f *models.File) { f.LinkType, f.Link = lt, link })
}

func (m *Files) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.byID, id)
	delete(m.order, id)
	return nil
}

func (m *Files) DeleteByOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.byID {
		if f.OwnerID == ownerID {
			delete(m.byID, id)
			delete(m.order, id)
		}
	}
	return nil
}

type Folders struct {
	mu   sync.Mutex
	byID map[string]*models.Folder
}

func (m *Folders) Create(_ context.Context, f *models.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *Folders) GetByID(_ context.Context, id string) (*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *Folders) ListByParent(_ context.Context, ownerID, parentID string) ([]*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Folder
	for _, f := range m.byID {
		if f.OwnerID == ownerID && f.ParentID == parentID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Folders) SetLock(_ context.Context, id string, until *time.Time) (*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	f.LockUntil = until
	cp := *f
	return &cp, nil
}

func (m *Folders) ListLocked(_ context.Context, ownerID string, now time.Time) ([]*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Folder
	for _, f := range m.byID {
		if f.OwnerID == ownerID && f.LockedAt(now) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Folders) Descendants(_ context.Context, ownerID, folderID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	frontier := []string{folderID}
	for len(frontier) > 0 {
		var next []string
		for _, f := range m.byID {
			for _, p := range frontier {
				if f.OwnerID == ownerID && f.ParentID == p {
					out = append(out, f.ID)
					next = append(next, f.ID)
				}
			}
		}
		frontier = next
	}
	sort.Strings(out)
	return out, nil
}

func (m *Folders) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return common.ErrorNotFound
	}
	// ON DELETE CASCADE
	var drop func(string)
	drop = func(pid string) {
		delete(m.byID, pid)
		for cid, f := range m.byID {
			if f.ParentID == pid {
				drop(cid)
			}
		}
	}
	drop(id)
	return nil
}

func (m *Folders) DeleteByOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.byID {
		if f.OwnerID == ownerID {
			delete(m.byID, id)
		}
	}
	return nil
}

type Tokens struct {
	mu     sync.Mutex
	tokens map[string]models.AccessToken
}

func (s *Tokens) Save(_ context.Context, t *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = *t
	return nil
}

func (s *Tokens) ReplaceLink(_ context.Context, t *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.tokens {
		if v.Subject == t.Subject && v.Kind.IsLink() {
			delete(s.tokens, k)
		}
	}
	s.tokens[t.Token] = *t
	return nil
}

func (s *Tokens) Get(_ context.Context, token string) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (s *Tokens) Take(_ context.Context, token string, kind models.TokenKind) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok || t.Kind != kind {
		return nil, common.ErrorNotFound
	}
	delete(s.tokens, token)
	return &t, nil
}

func (s *Tokens) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *Tokens) deleteWhere(pred func(models.AccessToken) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, v := range s.tokens {
		if pred(v) {
			delete(s.tokens, k)
			n++
		}
	}
	return n
}

func (s *Tokens) DeleteLinks(_ context.Context, subject string) error {
	s.deleteWhere(func(t models.AccessToken) bool { return t.Subject == subject && t.Kind.IsLink() })
	return nil
}

func (s *Tokens) DeleteByUser(_ context.Context, userID string) error {
	s.deleteWhere(func(t models.AccessToken) bool { return t.UserID == userID })
	return nil
}

func (s *Tokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(t models.AccessToken) bool { return t.ExpiredAt(now) }), nil
}

type Chunks struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func (m *Chunks) Put(_ context.Context, key string, idx int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[fmt.Sprintf("%s#%d", key, idx)] = append([]byte(nil), data...)
	return nil
}

func (m *Chunks) Get(_ context.Context, key string, idx int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[fmt.Sprintf("%s#%d", key, idx)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return d, nil
}

func (m *Chunks) DeleteByKey(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.rows {
		if strings.HasPrefix(k, key+"#") {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

// Manager hands out the same repositories regardless of the DBTX, so
// transactions are not isolated.
type Manager struct {
	files   *Files
	folders *Folders
	tokens  *Tokens
	chunks  *Chunks
}

func New() *Manager {
	return &Manager{
		files:   &Files{byID: map[string]*models.File{}, order: map[string]int{}},
		folders: &Folders{byID: map[string]*models.Folder{}},
		tokens:  &Tokens{tokens: map[string]models.AccessToken{}},
		chunks:  &Chunks{rows: map[string][]byte{}},
	}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *Manager) Files(dbx.DBTX) files.Repository              { return m.files }
func (m *Manager) Folders(dbx.DBTX) folders.Repository          { return m.folders }
func (m *Manager) Tokens(dbx.DBTX) tokens.Repository            { return m.tokens }
func (m *Manager) Chunks(dbx.DBTX) chunks.Repository            { return m.chunks }

// PutFolder stores folder as is, bypassing Create.
func (m *Manager) PutFolder(folder *models.Folder) {
	m.folders.mu.Lock()
	defer m.folders.mu.Unlock()
	cp := *folder
	m.folders.byID[folder.ID] = &cp
}

// FileIDs returns the ids of every stored file, sorted.
func (m *Manager) FileIDs() []string {
	m.files.mu.Lock()
	defer m.files.mu.Unlock()
	return sortedKeys(m.files.byID)
}

// FolderIDs returns the ids of every stored folder, sorted.
func (m *Manager) FolderIDs() []string {
	m.folders.mu.Lock()
	defer m.folders.mu.Unlock()
	return sortedKeys(m.folders.byID)
}

// ChunkCount returns the number of stored chunk rows.
func (m *Manager) ChunkCount() int {
	m.chunks.mu.Lock()
	defer m.chunks.mu.Unlock()
	return len(m.chunks.rows)
}

// TokenCount returns the number of stored tokens.
func (m *Manager) TokenCount() int {
	m.tokens.mu.Lock()
	defer m.tokens.mu.Unlock()
	return len(m.tokens.tokens)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
