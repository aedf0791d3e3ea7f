package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/folderlock"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/dmitrijs2005/clouddrive/internal/server/notify"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/memrepo"
	"github.com/dmitrijs2005/clouddrive/internal/server/storage"
	"github.com/dmitrijs2005/clouddrive/internal/server/tokens"
	"go.uber.org/zap"
)

type sentMail struct {
	mu   sync.Mutex
	msgs []notify.ShareEmail
}

func (s *sentMail) Send(_ context.Context, m notify.ShareEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *sentMail) Close() error { return nil }

type env struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	rm      *memrepo.Manager
	tm      *tokens.Manager
	locks   *folderlock.Index
	engine  *storage.Engine
	mail    *sentMail
	chunk   *ChunkService
	file    *FileService
	folder  *FolderService
	now     time.Time
	advance func(time.Duration)
}

var (
	alice = models.Principal{ID: "alice", Email: "alice@example.com", EmailVerified: true}
	bob   = models.Principal{ID: "bob", Email: "bob@example.com"}
)

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rm := memrepo.New()
	logger := logging.NewZapLogger(zap.NewNop())

	e := &env{db: db, mock: mock, rm: rm, now: time.Now(), mail: &sentMail{}}
	clock := func() time.Time { return e.now }
	e.advance = func(d time.Duration) { e.now = e.now.Add(d) }

	e.tm = tokens.NewManager(rm.Tokens(db), tokens.Options{
		SecretKey:   "test-secret",
		DownloadTTL: 5 * time.Minute,
		VideoTTL:    time.Hour,
	})
	e.tm.SetClock(clock)
	e.locks = folderlock.New(rm.Folders(db))
	e.locks.SetClock(clock)
	e.engine = storage.NewEngine(rm.Files(db), storage.NewDBChunkStore(rm.Chunks(db)), storage.Options{ChunkSize: 1024}, logger)

	e.chunk = NewChunkService(db, rm, e.engine, e.tm, e.locks, logger)
	e.file = NewFileService(db, rm, e.engine, e.tm, e.locks, e.mail)
	e.folder = NewFolderService(db, rm, e.locks)
	return e
}

func (e *env) addFolder(id, owner, parent string) {
	e.rm.PutFolder(&models.Folder{ID: id, OwnerID: owner, ParentID: parent, Name: id})
}
