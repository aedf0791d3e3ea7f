package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/auth"
	"github.com/dmitrijs2005/clouddrive/internal/server/folderlock"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/dmitrijs2005/clouddrive/internal/server/notify"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/memrepo"
	"github.com/dmitrijs2005/clouddrive/internal/server/services"
	"github.com/dmitrijs2005/clouddrive/internal/server/storage"
	"github.com/dmitrijs2005/clouddrive/internal/server/tokens"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

var (
	alice = models.Principal{ID: "alice", Email: "alice@example.com", EmailVerified: true}
	bob   = models.Principal{ID: "bob", Email: "bob@example.com"}
)

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	rm     *memrepo.Manager
	mock   sqlmock.Sqlmock
	now    time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.NewZapLogger(zap.NewNop())
	a := &testAPI{t: t, rm: memrepo.New(), mock: mock, now: time.Now()}
	clock := func() time.Time { return a.now }

	tm := tokens.NewManager(a.rm.Tokens(db), tokens.Options{
		SecretKey:   testSecret,
		DownloadTTL: 5 * time.Minute,
		VideoTTL:    time.Hour,
	})
	tm.SetClock(clock)
	locks := folderlock.New(a.rm.Folders(db))
	locks.SetClock(clock)
	engine := storage.NewEngine(a.rm.Files(db), storage.NewDBChunkStore(a.rm.Chunks(db)), storage.Options{ChunkSize: 64}, logger)

	a.router = NewRouter(Deps{
		Chunks:    services.NewChunkService(db, a.rm, engine, tm, locks, logger),
		Files:     services.NewFileService(db, a.rm, engine, tm, locks, notify.NewLogDispatcher(logger)),
		Folders:   services.NewFolderService(db, a.rm, locks),
		SecretKey: testSecret,
		VideoTTL:  time.Hour,
		Logger:    logger,
	})
	return a
}

func (a *testAPI) bearer(p models.Principal) string {
	tok, err := auth.GeneratePrincipalToken(p, []byte(testSecret), time.Hour)
	require.NoError(a.t, err)
	return "Bearer " + tok
}

func (a *testAPI) do(method, target string, body io.Reader, p *models.Principal, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if p != nil {
		req.Header.Set("Authorization", a.bearer(*p))
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(p models.Principal, name, parent string, data []byte) *models.File {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if parent != "" {
		require.NoError(a.t, mw.WriteField("parent", parent))
	}
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(a.t, err)
	_, err = fw.Write(data)
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	rec := a.do(http.MethodPost, "/file-service/upload", &buf, &p, map[string]string{"Content-Type": mw.FormDataContentType()})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())

	var f models.File
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &f))
	return &f
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/metrics", nil, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clouddrive_http_requests_total")
}

func TestAuth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/file-service/quick-list", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/file-service/quick-list", nil, nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	scoped, err := auth.GenerateScopedToken("alice", models.TokenDownload, "", "jti", []byte(testSecret), time.Hour)
	require.NoError(t, err)
	rec = a.do(http.MethodGet, "/file-service/quick-list", nil, nil, map[string]string{"Authorization": "Bearer " + scoped})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/folder-service/locked", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := auth.GeneratePrincipalToken(alice, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/file-service/quick-list", nil)
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: tok})
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadAndDownload(t *testing.T) {
	a := newTestAPI(t)
	data := bytes.Repeat([]byte("0123456789"), 50)
	f := a.upload(alice, "digits.txt", "", data)
	assert.Equal(t, "digits.txt", f.Name)
	assert.EqualValues(t, len(data), f.Size)

	rec := a.do(http.MethodGet, "/file-service/download/"+f.ID, nil, &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "digits.txt")

	rec = a.do(http.MethodGet, "/file-service/download/"+f.ID, nil, &bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, "/file-service/download/"+f.ID, nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/file-service/download/get-token", nil, &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		TempToken string `json:"tempToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	rec = a.do(http.MethodGet, "/file-service/download/"+f.ID+"?tempToken="+body.TempToken, nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestUpload_BadRequests(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/file-service/upload", strings.NewReader("x"), &alice, map[string]string{"Content-Type": "text/plain"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "orphan"))
	require.NoError(t, mw.Close())
	rec = a.do(http.MethodPost, "/file-service/upload", &buf, &alice, map[string]string{"Content-Type": mw.FormDataContentType()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamVideo(t *testing.T) {
	a := newTestAPI(t)
	data := bytes.Repeat([]byte("abcdefghij"), 100)
	f := a.upload(alice, "clip.bin", "", data)
	client := map[string]string{clientHeader: "client-1"}

	rec := a.do(http.MethodGet, "/file-service/stream-video/access-token", nil, &alice, client)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, videoCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	stream := func(rng, uuid string, withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/file-service/stream-video/"+f.ID, nil)
		req.Header.Set("Authorization", a.bearer(alice))
		req.Header.Set(clientHeader, uuid)
		if rng != "" {
			req.Header.Set("Range", rng)
		}
		if withCookie {
			req.AddCookie(cookies[0])
		}
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, req)
		return rec
	}

	rec = stream("bytes=0-99", "client-1", true)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, data[:100], rec.Body.Bytes())

	rec = stream("", "client-1", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), 1000)

	rec = stream("bytes=5000-", "client-1", true)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))

	rec = stream("bytes=0-1", "client-2", true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = stream("bytes=0-1", "client-1", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOneTimeLink(t *testing.T) {
	a := newTestAPI(t)
	f := a.upload(alice, "once.txt", "", []byte("just once"))

	rec := a.do(http.MethodPatch, "/file-service/make-one/"+f.ID, nil, &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tok := rec.Body.String()

	rec = a.do(http.MethodGet, "/file-service/public/info/"+f.ID+"/"+tok, nil, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/file-service/public/download/"+f.ID+"/"+tok, nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "just once", rec.Body.String())

	rec = a.do(http.MethodGet, "/file-service/public/download/"+f.ID+"/"+tok, nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPatch, "/file-service/make-one/"+f.ID, nil, &bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLockedFolderListing(t *testing.T) {
	a := newTestAPI(t)

	a.mock.ExpectBegin()
	a.mock.ExpectCommit()
	rec := a.do(http.MethodPost, "/folder-service/upload", strings.NewReader(`{"name":"vault"}`), &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var folder models.Folder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &folder))
	require.NoError(t, a.mock.ExpectationsWereMet())

	inside := a.upload(alice, "inside.txt", folder.ID, []byte("hidden"))

	until := a.now.Add(time.Hour).UTC().Format(time.RFC3339)
	rec = a.do(http.MethodPatch, "/folder-service/lock", strings.NewReader(`{"id":"`+folder.ID+`","until":"`+until+`"}`), &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/file-service/list?parent="+folder.ID, nil, &bob, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(http.MethodGet, "/file-service/list?parent="+folder.ID, nil, &alice, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "locked until")

	rec = a.do(http.MethodGet, "/file-service/download/"+inside.ID, nil, &alice, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "locked until")

	rec = a.do(http.MethodGet, "/file-service/quick-list", nil, &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	a.now = a.now.Add(2 * time.Hour)

	rec = a.do(http.MethodGet, "/file-service/list?parent="+folder.ID, nil, &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []models.File
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "inside.txt", files[0].Name)
}

func TestRemove(t *testing.T) {
	a := newTestAPI(t)
	a.rm.PutFolder(&models.Folder{ID: "docs", OwnerID: "alice", Name: "docs"})
	f := a.upload(alice, "a.txt", "", []byte("a"))
	a.upload(alice, "b.txt", "docs", []byte("b"))

	rec := a.do(http.MethodDelete, "/file-service/remove", strings.NewReader(`{}`), &alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodDelete, "/file-service/remove", strings.NewReader(`{"id":"`+f.ID+`"}`), &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, "/file-service/info/"+f.ID, nil, &alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodDelete, "/folder-service/remove", strings.NewReader(`{"id":"docs","parentList":["docs"]}`), &bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodDelete, "/folder-service/remove", strings.NewReader(`{"id":"docs","parentList":["docs"]}`), &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, a.rm.FileIDs())
	assert.Empty(t, a.rm.FolderIDs())
	assert.Zero(t, a.rm.ChunkCount())
}
