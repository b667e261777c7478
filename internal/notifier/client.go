// Package notifier — доставка уведомлений о смене статуса тикета в бот-релей
// (Discord/Telegram-мост), который уже сам пишет пользователям в тред или в
// личные сообщения.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/loopback-ai/helpdesk-service/internal/model"
)

// Notifier — интерфейс для сервисного слоя (подменяется фейком в тестах).
type Notifier interface {
	NotifyTicketAsync(t *model.Ticket, question string)
}

// Client шлёт уведомления в relay-сервис (best-effort, не блокирует API).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient возвращает клиент. Если baseURL пустой, вызовы — no-op.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// TicketNotification — тело POST /notify/ticket.
type TicketNotification struct {
	TicketID    string   `json:"ticket_id"`
	Status      string   `json:"status"`
	Query       string   `json:"query"`
	FinalAnswer string   `json:"final_answer,omitempty"`
	Question    string   `json:"question,omitempty"`
	Users       []string `json:"users,omitempty"`
	ThreadID    string   `json:"thread_id,omitempty"`
}

// NotifyTicket отправляет уведомление. question — последний вопрос админа
// (для статуса Awaiting Info), иначе пусто.
func (c *Client) NotifyTicket(ctx context.Context, t *model.Ticket, question string) {
	if c.baseURL == "" {
		return
	}
	payload := TicketNotification{
		TicketID:    t.ID,
		Status:      string(t.Status),
		Query:       t.Query,
		FinalAnswer: t.FinalAnswer,
		Question:    question,
		Users:       t.Users,
		ThreadID:    t.ThreadID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notifier: marshal: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notify/ticket", bytes.NewReader(body))
	if err != nil {
		log.Printf("notifier: new request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("notifier: request: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("notifier: status %d for ticket %s", resp.StatusCode, t.ID)
	}
}

// NotifyTicketAsync вызывает NotifyTicket в отдельной горутине (не блокирует
// ответ API).
func (c *Client) NotifyTicketAsync(t *model.Ticket, question string) {
	if c.baseURL == "" {
		return
	}
	snapshot := *t
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.NotifyTicket(ctx, &snapshot, question)
	}()
}
