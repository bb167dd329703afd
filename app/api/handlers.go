package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/lmzhao/zhisieve/app/engine"
	"github.com/lmzhao/zhisieve/app/stats"
)

func NewHandler(eng *engine.Engine, tracker *stats.Tracker) *Handler {
	return &Handler{
		engine:  eng,
		tracker: tracker,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"closed":    h.engine.Closed(),
	}

	counts := h.tracker.Snapshot()
	health["blocked_total"] = counts.Total

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Snapshot())
}

func (h *Handler) GetDecisions(c *gin.Context) {
	decisions := h.engine.Decisions()
	c.JSON(http.StatusOK, gin.H{
		"decisions": decisions,
		"total":     len(decisions),
	})
}

func (h *Handler) GetRenderedDocument(c *gin.Context) {
	rendered, err := h.engine.Document().RenderString()
	if err != nil {
		slog.Error("Document render error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, rendered)
}

func (h *Handler) GetHidden(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"titles":   h.engine.HiddenTitles(),
		"comments": h.engine.HiddenComments(),
	})
}

// PostDocument replaces the mirrored document with the request body and
// runs both filter passes against the fresh tree.
func (h *Handler) PostDocument(c *gin.Context) {
	if err := h.engine.ResetDocument(c.Request.Body); err != nil {
		h.renderEngineError(c, "reset_document", err)
		return
	}

	if err := h.runPasses(c); err != nil {
		return
	}

	counts := h.tracker.Snapshot()
	c.Header("X-Blocked-Total", strconv.Itoa(counts.Total))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   counts,
	})
}

type mutationRequest struct {
	Parent string `json:"parent" binding:"required"`
	HTML   string `json:"html" binding:"required"`
}

// PostMutations appends a fragment under the given parent selector. The
// mutation observer schedules the debounced filter passes; the response
// reports only what was added.
func (h *Handler) PostMutations(c *gin.Context) {
	var req mutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mutation payload", "details": err.Error()})
		return
	}

	added, err := h.engine.AppendFragment(req.Parent, req.HTML)
	if err != nil {
		h.renderEngineError(c, "append_fragment", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"added":   len(added),
	})
}

func (h *Handler) PostCommand(c *gin.Context) {
	var cmd engine.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid command payload", "details": err.Error()})
		return
	}

	if err := h.engine.HandleCommand(c.Request.Context(), cmd); err != nil {
		if errors.Is(err, engine.ErrContextInvalidated) {
			h.renderEngineError(c, "command", err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Command failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.tracker.Snapshot(),
	})
}

type classifyRequest struct {
	Selector string `json:"selector" binding:"required"`
}

func (h *Handler) PostClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid classify payload", "details": err.Error()})
		return
	}

	role, err := h.engine.ClassifySelection(c.Request.Context(), req.Selector)
	if err != nil {
		if errors.Is(err, engine.ErrContextInvalidated) {
			h.renderEngineError(c, "classify", err)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Classification failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"type": role})
}

// GetConfig exports the current keyword configuration in seed form.
func (h *Handler) GetConfig(c *gin.Context) {
	seed, err := h.engine.ExportConfig(c.Request.Context())
	if err != nil {
		slog.Error("Configuration export error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	out, err := yaml.Marshal(seed)
	if err != nil {
		slog.Error("Configuration encode error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.String(http.StatusOK, string(out))
}

func (h *Handler) runPasses(c *gin.Context) error {
	ctx := c.Request.Context()
	if err := h.engine.RunFeedPass(ctx); err != nil {
		h.renderEngineError(c, "feed_pass", err)
		return err
	}
	if err := h.engine.RunCommentPass(ctx); err != nil {
		h.renderEngineError(c, "comment_pass", err)
		return err
	}
	return nil
}

func (h *Handler) renderEngineError(c *gin.Context, operation string, err error) {
	if errors.Is(err, engine.ErrContextInvalidated) {
		c.JSON(http.StatusGone, gin.H{"error": "Engine has been shut down"})
		return
	}
	slog.Error("Engine error", "operation", operation, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
}
