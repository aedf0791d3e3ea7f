package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/metrics"
	"github.com/dmitrijs2005/clouddrive/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Deps is everything the router needs.
type Deps struct {
	Chunks       *services.ChunkService
	Files        *services.FileService
	Folders      *services.FolderService
	SecretKey    string
	VideoTTL     time.Duration
	CookieSecure bool
	Logger       logging.Logger
}

// NewRouter builds the gin engine serving /file-service, /folder-service,
// /health and /metrics.
func NewRouter(d Deps) *gin.Engine {
	secret := []byte(d.SecretKey)
	logger := d.Logger.With("module", "http")

	r := gin.New()
	r.Use(gin.Recovery(), observe(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	fh := &fileHandler{
		chunks:       d.Chunks,
		files:        d.Files,
		secret:       secret,
		videoTTL:     d.VideoTTL,
		cookieSecure: d.CookieSecure,
	}
	files := r.Group("/file-service")
	fh.register(files, files.Group("", Auth(secret)))

	fo := &folderHandler{folders: d.Folders, chunks: d.Chunks}
	fo.register(r.Group("/folder-service", Auth(secret)))

	return r
}
