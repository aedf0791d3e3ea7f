package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"go.uber.org/zap"
)

func nopLogger() logging.Logger { return logging.NewZapLogger(zap.NewNop()) }

type memFiles struct {
	mu        sync.Mutex
	byID      map[string]*models.File
	createErr error
}

func newMemFiles() *memFiles { return &memFiles{byID: map[string]*models.File{}} }

func (m *memFiles) Create(_ context.Context, f *models.File) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *memFiles) GetByID(_ context.Context, id string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	cp.Derive()
	return &cp, nil
}

func (m *memFiles) ListByParents(_ context.Context, ownerID string, parents []string) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]bool{}
	for _, p := range parents {
		set[p] = true
	}
	var out []*models.File
	for _, f := range m.byID {
		if f.OwnerID == ownerID && set[f.ParentID] {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memFiles) ListByOwner(_ context.Context, ownerID string) ([]*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.File
	for _, f := range m.byID {
		if f.OwnerID == ownerID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memFiles) SetThumbnail(_ context.Context, id, key string, size int64, iv []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	f.ThumbnailKey, f.ThumbnailSize, f.ThumbnailIV = key, size, iv
	return nil
}

func (m *memFiles) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memFiles) DeleteByOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.byID {
		if f.OwnerID == ownerID {
			delete(m.byID, id)
		}
	}
	return nil
}

// memChunks is an in-memory chunks repository that counts reads.
type memChunks struct {
	mu    sync.Mutex
	rows  map[string][]byte
	gets  []int
	putFn func(idx int) error
}

func newMemChunks() *memChunks { return &memChunks{rows: map[string][]byte{}} }

func rowKey(key string, idx int) string { return fmt.Sprintf("%s#%d", key, idx) }

func (m *memChunks) Put(_ context.Context, key string, idx int, data []byte) error {
	if m.putFn != nil {
		if err := m.putFn(idx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rowKey(key, idx)] = append([]byte(nil), data...)
	return nil
}

func (m *memChunks) Get(_ context.Context, key string, idx int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, idx)
	d, ok := m.rows[rowKey(key, idx)]
	if !ok {
		return nil, fmt.Errorf("chunk %d: %w", idx, common.ErrorNotFound)
	}
	return d, nil
}

func (m *memChunks) DeleteByKey(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.rows {
		if len(k) > len(key) && k[:len(key)+1] == key+"#" {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memChunks) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.rows {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// failingReader yields n bytes and then fails.
type failingReader struct {
	n int
}

var errBrokenPipe = errors.New("client went away")

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, errBrokenPipe
	}
	if len(p) > f.n {
		p = p[:f.n]
	}
	for i := range p {
		p[i] = byte(i)
	}
	f.n -= len(p)
	return len(p), nil
}
