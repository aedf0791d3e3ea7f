package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/services"
	"github.com/gin-gonic/gin"
)

type folderHandler struct {
	folders *services.FolderService
	chunks  *services.ChunkService
}

func (h *folderHandler) register(g *gin.RouterGroup) {
	g.POST("/upload", h.create)
	g.PATCH("/lock", h.lock)
	g.GET("/locked", h.locked)
	g.GET("/info/:id", h.info)
	g.GET("/list", h.list)
	g.DELETE("/remove", h.remove)
	g.DELETE("/remove-all", h.removeAll)
}

type createFolderRequest struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

func (h *folderHandler) create(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("decode body: %v: %w", err, common.ErrorBadInput))
		return
	}
	if req.Parent == "/" {
		req.Parent = ""
	}
	f, err := h.folders.CreateFolder(c.Request.Context(), principal(c), req.Name, req.Parent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type lockFolderRequest struct {
	ID    string     `json:"id"`
	Until *time.Time `json:"until"`
}

func (h *folderHandler) lock(c *gin.Context) {
	var req lockFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		writeError(c, fmt.Errorf("folder id required: %w", common.ErrorBadInput))
		return
	}
	f, err := h.folders.LockFolder(c.Request.Context(), principal(c), req.ID, req.Until)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *folderHandler) locked(c *gin.Context) {
	folders, err := h.folders.GetLockedFolders(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

func (h *folderHandler) info(c *gin.Context) {
	f, err := h.folders.GetFolderInfo(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *folderHandler) list(c *gin.Context) {
	folders, err := h.folders.ListFolders(c.Request.Context(), principal(c), parentParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

// removeFolderRequest carries the client's view of the subtree in
// ParentList. The server resolves descendants itself, so it is not trusted.
type removeFolderRequest struct {
	ID         string   `json:"id"`
	ParentList []string `json:"parentList"`
}

func (h *folderHandler) remove(c *gin.Context) {
	var req removeFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		writeError(c, fmt.Errorf("folder id required: %w", common.ErrorBadInput))
		return
	}
	if err := h.chunks.DeleteFolder(c.Request.Context(), principal(c), req.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *folderHandler) removeAll(c *gin.Context) {
	if err := h.chunks.DeleteAll(c.Request.Context(), principal(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
