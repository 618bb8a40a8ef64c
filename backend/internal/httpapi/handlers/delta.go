package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"deltaServer/backend/internal/ot/delta"
)

// 纯算法接口，无状态，不需要鉴权

type pairRequest struct {
	A delta.Delta `json:"a"`
	B delta.Delta `json:"b"`
	// 只对 transform 有效：true 表示 a 先发生
	Priority bool `json:"priority"`
}

type positionRequest struct {
	Delta    delta.Delta `json:"delta"`
	Index    int         `json:"index"`
	Priority bool        `json:"priority"`
}

type invertRequest struct {
	Delta delta.Delta `json:"delta"`
	Base  delta.Delta `json:"base"`
}

// DeltaLimits bounds the work one request may ask for. Zero means no limit.
type DeltaLimits struct {
	// diff 是 O(N*D)，文档长度必须有上限
	MaxDiffLength int
}

func RegisterDeltaRoutes(g *gin.RouterGroup, limits DeltaLimits) {
	g.POST("/compose", pairHandler(func(r pairRequest) (delta.Delta, error) { return r.A.Compose(r.B) }))
	g.POST("/transform", pairHandler(func(r pairRequest) (delta.Delta, error) { return r.A.Transform(r.B, r.Priority) }))
	g.POST("/diff", pairHandler(func(r pairRequest) (delta.Delta, error) {
		if err := limits.checkDiff(r.A, r.B); err != nil {
			return nil, err
		}
		return r.A.Diff(r.B)
	}))
	g.POST("/transform-position", TransformPosition)
	g.POST("/invert", Invert)
}

func (l DeltaLimits) checkDiff(a, b delta.Delta) error {
	if l.MaxDiffLength <= 0 {
		return nil
	}
	if n := max(a.Length(), b.Length()); n > l.MaxDiffLength {
		return fmt.Errorf("diff: document of %d units exceeds the limit of %d: %w", n, l.MaxDiffLength, delta.ErrInvalidOperation)
	}
	return nil
}

func pairHandler(op func(pairRequest) (delta.Delta, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pairRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
		result, err := op(req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}

func TransformPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	index, err := req.Delta.TransformPosition(req.Index, req.Priority)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index})
}

func Invert(c *gin.Context) {
	var req invertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	result, err := req.Delta.Invert(req.Base)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
