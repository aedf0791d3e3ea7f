package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/services"
	"github.com/dmitrijs2005/clouddrive/internal/server/storage"
	"github.com/gin-gonic/gin"
)

// maxFieldSize bounds a non-file multipart field.
const maxFieldSize = 4 << 10

type fileHandler struct {
	chunks       *services.ChunkService
	files        *services.FileService
	secret       []byte
	videoTTL     time.Duration
	cookieSecure bool
}

func (h *fileHandler) register(public, private *gin.RouterGroup) {
	public.GET("/download/:id", h.download)
	public.GET("/public/download/:id/:tempToken", h.publicDownload)
	public.GET("/public/info/:id/:tempToken", h.publicInfo)
	public.GET("/public/thumbnail/:id/:tempToken", h.publicThumbnail)

	private.POST("/upload", h.upload)
	private.GET("/download/get-token", h.downloadToken)
	private.GET("/thumbnail/:id", h.thumbnail)
	private.GET("/full-thumbnail/:id", h.fullThumbnail)
	private.PATCH("/make-public/:id", h.makePublic)
	private.PATCH("/make-one/:id", h.makeOneTime)
	private.DELETE("/remove-link/:id", h.removeLink)
	private.POST("/send-share-email", h.sendShareEmail)
	private.GET("/info/:id", h.info)
	private.GET("/quick-list", h.quickList)
	private.GET("/list", h.list)
	private.GET("/stream-video/access-token", h.videoToken)
	private.DELETE("/stream-video/access-token", h.removeVideoToken)
	private.GET("/stream-video/:id", h.streamVideo)
	private.DELETE("/remove-token/:tempToken/:uuid", h.removeTempToken)
	private.DELETE("/remove", h.remove)
}

func readField(p *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(p, maxFieldSize))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// upload streams the "file" part straight into the backend. The "name" and
// "parent" fields must precede it.
func (h *fileHandler) upload(c *gin.Context) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		writeError(c, fmt.Errorf("multipart body: %w", common.ErrorBadInput))
		return
	}

	var meta storage.UploadMeta
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(c, fmt.Errorf("missing file part: %w", common.ErrorBadInput))
			return
		}
		if err != nil {
			writeError(c, fmt.Errorf("read multipart: %v: %w", err, common.ErrorBadInput))
			return
		}

		switch part.FormName() {
		case "file":
			if meta.Name == "" {
				meta.Name = part.FileName()
			}
			meta.ContentType = part.Header.Get("Content-Type")
			f, err := h.chunks.UploadFile(c.Request.Context(), principal(c), part, meta)
			part.Close()
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, f)
			return
		case "name":
			meta.Name, err = readField(part)
		case "parent":
			meta.ParentID, err = readField(part)
		}
		part.Close()
		if err != nil {
			writeError(c, fmt.Errorf("read field: %v: %w", err, common.ErrorBadInput))
			return
		}
	}
}

// download serves the owner, or the holder of a tempToken query parameter.
func (h *fileHandler) download(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if tok := c.Query(common.TempTokenQueryName); tok != "" {
		if err := h.chunks.DownloadWithToken(ctx, tok, id, c.Writer); err != nil {
			writeError(c, err)
		}
		return
	}

	p, err := authenticate(c, h.secret)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.chunks.DownloadFile(ctx, p, id, c.Writer); err != nil {
		writeError(c, err)
	}
}

func (h *fileHandler) publicDownload(c *gin.Context) {
	if err := h.chunks.GetPublicDownload(c.Request.Context(), c.Param("id"), c.Param("tempToken"), c.Writer); err != nil {
		writeError(c, err)
	}
}

func (h *fileHandler) publicInfo(c *gin.Context) {
	f, err := h.files.GetPublicInfo(c.Request.Context(), c.Param("id"), c.Param("tempToken"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *fileHandler) publicThumbnail(c *gin.Context) {
	if err := h.chunks.GetPublicThumbnail(c.Request.Context(), c.Param("id"), c.Param("tempToken"), c.Writer); err != nil {
		writeError(c, err)
	}
}

func (h *fileHandler) downloadToken(c *gin.Context) {
	tok, err := h.files.GetDownloadToken(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tempToken": tok})
}

func (h *fileHandler) thumbnail(c *gin.Context) {
	if err := h.chunks.GetThumbnail(c.Request.Context(), principal(c), c.Param("id"), c.Writer); err != nil {
		writeError(c, err)
	}
}

func (h *fileHandler) fullThumbnail(c *gin.Context) {
	if err := h.chunks.GetFullThumbnail(c.Request.Context(), principal(c), c.Param("id"), c.Writer); err != nil {
		writeError(c, err)
	}
}

func (h *fileHandler) makePublic(c *gin.Context) {
	tok, err := h.files.MakePublic(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, tok)
}

func (h *fileHandler) makeOneTime(c *gin.Context) {
	tok, err := h.files.MakeOneTimePublic(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, tok)
}

func (h *fileHandler) removeLink(c *gin.Context) {
	if err := h.files.RemoveLink(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type shareEmailRequest struct {
	ID string `json:"file"`
	To string `json:"email"`
}

func (h *fileHandler) sendShareEmail(c *gin.Context) {
	var req shareEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("decode body: %v: %w", err, common.ErrorBadInput))
		return
	}
	if err := h.files.SendShareEmail(c.Request.Context(), principal(c), req.ID, req.To); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *fileHandler) info(c *gin.Context) {
	f, err := h.files.GetInfo(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *fileHandler) quickList(c *gin.Context) {
	files, err := h.files.QuickList(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// parentParam returns the parent query parameter; "/" and absent mean root.
func parentParam(c *gin.Context) string {
	p := c.Query("parent")
	if p == "/" {
		return ""
	}
	return p
}

func (h *fileHandler) list(c *gin.Context) {
	files, err := h.files.List(c.Request.Context(), principal(c), parentParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *fileHandler) videoToken(c *gin.Context) {
	tok, err := h.files.GetVideoAccessToken(c.Request.Context(), principal(c), c.GetHeader(clientHeader))
	if err != nil {
		writeError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(videoCookie, tok, int(h.videoTTL/time.Second), "/", "", h.cookieSecure, true)
	c.Status(http.StatusOK)
}

func (h *fileHandler) removeVideoToken(c *gin.Context) {
	tok, err := c.Cookie(videoCookie)
	if err != nil {
		writeError(c, fmt.Errorf("missing video cookie: %w", common.ErrorUnauthorized))
		return
	}
	if err := h.files.RemoveVideoAccessToken(c.Request.Context(), principal(c), tok, c.GetHeader(clientHeader)); err != nil {
		writeError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(videoCookie, "", -1, "/", "", h.cookieSecure, true)
	c.Status(http.StatusOK)
}

func (h *fileHandler) streamVideo(c *gin.Context) {
	tok, err := c.Cookie(videoCookie)
	if err != nil {
		writeError(c, fmt.Errorf("missing video cookie: %w", common.ErrorUnauthorized))
		return
	}
	err = h.chunks.StreamVideo(c.Request.Context(), principal(c), c.Param("id"), tok,
		c.GetHeader(clientHeader), c.GetHeader("Range"), c.Writer)
	if err != nil {
		writeError(c, err)
	}
}

func (h *fileHandler) removeTempToken(c *gin.Context) {
	if err := h.files.RemoveTempToken(c.Request.Context(), principal(c), c.Param("tempToken"), c.Param("uuid")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type removeFileRequest struct {
	ID string `json:"id"`
}

func (h *fileHandler) remove(c *gin.Context) {
	var req removeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		writeError(c, fmt.Errorf("file id required: %w", common.ErrorBadInput))
		return
	}
	if err := h.chunks.DeleteFile(c.Request.Context(), principal(c), req.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
