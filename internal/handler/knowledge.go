package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loopback-ai/helpdesk-service/internal/errs"
	"github.com/loopback-ai/helpdesk-service/internal/model"
	"github.com/loopback-ai/helpdesk-service/internal/service"
)

type KnowledgeHandler struct {
	svc *service.KnowledgeService
}

func NewKnowledgeHandler(svc *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	entries, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read knowledge base"})
		return
	}
	if entries == nil {
		entries = []model.KBEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// kbEntryRequest — тело create/update. Category, Question и Resolution
// обязательны (единственная валидация этого слоя).
type kbEntryRequest struct {
	Category   string `json:"category" binding:"required"`
	Question   string `json:"question" binding:"required"`
	Resolution string `json:"resolution" binding:"required"`
	Tags       string `json:"tags"`
}

func (h *KnowledgeHandler) Create(c *gin.Context) {
	var req kbEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category, question and resolution are required"})
		return
	}
	entry := &model.KBEntry{
		Category:   req.Category,
		Question:   req.Question,
		Resolution: req.Resolution,
		Tags:       req.Tags,
	}
	if err := h.svc.Create(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "created", "entry": entry})
}

func (h *KnowledgeHandler) Update(c *gin.Context) {
	var req kbEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category, question and resolution are required"})
		return
	}
	entry := &model.KBEntry{
		ID:         c.Param("id"),
		Category:   req.Category,
		Question:   req.Question,
		Resolution: req.Resolution,
		Tags:       req.Tags,
	}
	if err := h.svc.Update(c.Request.Context(), entry); err != nil {
		if errors.Is(err, errs.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "entry": entry})
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, errs.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
