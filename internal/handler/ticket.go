package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loopback-ai/helpdesk-service/internal/errs"
	"github.com/loopback-ai/helpdesk-service/internal/model"
	"github.com/loopback-ai/helpdesk-service/internal/service"
)

type TicketHandler struct {
	svc *service.TicketService
}

func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

// List отдаёт полный набор тикетов (контракт поллинга дашборда: полная
// замена состояния на каждом тике, без инкрементальных диффов).
func (h *TicketHandler) List(c *gin.Context) {
	tickets, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	c.JSON(http.StatusOK, tickets)
}

type createTicketRequest struct {
	Query       string             `json:"query" binding:"required"`
	History     []service.ChatTurn `json:"history"`
	Users       []string           `json:"users"`
	SessionID   string             `json:"session_id"`
	ThreadID    string             `json:"thread_id"`
	ForceCreate bool               `json:"force_create"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	res, err := h.svc.Create(c.Request.Context(), service.CreateTicketInput{
		Query:       req.Query,
		History:     req.History,
		Users:       req.Users,
		SessionID:   req.SessionID,
		ThreadID:    req.ThreadID,
		ForceCreate: req.ForceCreate,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ticket"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TicketHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete ticket"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (h *TicketHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.svc.Ask(c.Request.Context(), c.Param("id"), req.Question); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send question"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *TicketHandler) SelfResolve(c *gin.Context) {
	if err := h.svc.SelfResolve(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve ticket"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (h *TicketHandler) AckNotification(c *gin.Context) {
	if err := h.svc.AckNotification(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ack notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acked"})
}

type broadcastRequest struct {
	TicketID    string `json:"ticket_id" binding:"required"`
	FinalAnswer string `json:"final_answer" binding:"required"`
}

func (h *TicketHandler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	resolved, err := h.svc.Broadcast(c.Request.Context(), req.TicketID, req.FinalAnswer)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to broadcast"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "resolved": resolved})
}

type broadcastAllRequest struct {
	TicketIDs   []string `json:"ticket_ids"`
	Category    string   `json:"category"`
	FinalAnswer string   `json:"final_answer" binding:"required"`
}

func (h *TicketHandler) BroadcastAll(c *gin.Context) {
	var req broadcastAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	resolvedIDs, err := h.svc.BroadcastAll(c.Request.Context(), req.TicketIDs, req.Category, req.FinalAnswer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to broadcast"})
		return
	}
	if resolvedIDs == nil {
		resolvedIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"resolved":     len(resolvedIDs),
		"resolved_ids": resolvedIDs,
	})
}

type chatRequest struct {
	Message string             `json:"message" binding:"required"`
	History []service.ChatTurn `json:"history"`
}

func (h *TicketHandler) AnalyzeChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	c.JSON(http.StatusOK, h.svc.AnalyzeChat(c.Request.Context(), req.Message, req.History))
}
