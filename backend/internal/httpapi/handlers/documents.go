package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"deltaServer/backend/internal/collab"
	"deltaServer/backend/internal/ot/delta"
	"deltaServer/backend/internal/store"
)

// DocumentLister 由 store.DocumentStore 实现；为 nil 时列表接口返回 503
type DocumentLister interface {
	ListDocuments(ctx context.Context, limit int) ([]store.DocumentSummary, error)
}

type DocumentHandler struct {
	svc  collab.Service
	docs DocumentLister
}

func NewDocumentHandler(svc collab.Service, docs DocumentLister) *DocumentHandler {
	return &DocumentHandler{svc: svc, docs: docs}
}

type submitRequest struct {
	BaseRevision uint64      `json:"baseRevision"`
	ClientId     string      `json:"clientId"`
	ClientSeq    uint64      `json:"clientSeq"`
	Ops          delta.Delta `json:"ops" binding:"required"`
}

func (h *DocumentHandler) Register(g *gin.RouterGroup) {
	g.GET("", h.ListDocuments)
	g.GET("/:docID", h.GetDocument)
	g.POST("/:docID/ops", h.SubmitOps)
	g.GET("/:docID/ops", h.OpsSince)
	g.POST("/:docID/snapshot", h.SaveSnapshot)
	g.GET("/:docID/cursors", h.Cursors)
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	if h.docs == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": "NO_STORE"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	docs, err := h.docs.ListDocuments(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.svc.LoadDocument(c.Request.Context(), c.Param("docID"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) SubmitOps(c *gin.Context) {
	//从gin.Context获取用户信息；gin.Context对每个用户天然隔离
	authorID := c.GetUint64("userId")
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	op, err := h.svc.Submit(c.Request.Context(), c.Param("docID"), authorID,
		req.BaseRevision, req.ClientId, req.ClientSeq, req.Ops)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

func (h *DocumentHandler) OpsSince(c *gin.Context) {
	docID := c.Param("docID")
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		abortBadRequest(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	ops, err := h.svc.OpsSince(c.Request.Context(), docID, since, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	rev, err := h.svc.CurrentRevision(c.Request.Context(), docID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if ops == nil {
		ops = []collab.AppliedOp{}
	}
	c.JSON(http.StatusOK, gin.H{"revision": rev, "ops": ops})
}

func (h *DocumentHandler) SaveSnapshot(c *gin.Context) {
	if err := h.svc.SaveSnapshot(c.Request.Context(), c.Param("docID")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Cursors(c *gin.Context) {
	cursors, err := h.svc.Cursors(c.Request.Context(), c.Param("docID"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cursors": cursors})
}
