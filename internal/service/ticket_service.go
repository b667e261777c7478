package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/loopback-ai/helpdesk-service/internal/assist"
	"github.com/loopback-ai/helpdesk-service/internal/kafka"
	"github.com/loopback-ai/helpdesk-service/internal/model"
	"github.com/loopback-ai/helpdesk-service/internal/notifier"
	"github.com/loopback-ai/helpdesk-service/internal/store"
	"github.com/loopback-ai/helpdesk-service/internal/textmatch"
)

// groupThreshold — порог похожести запросов, при котором новый тикет
// прикрепляется к группе существующего. Ниже порога дедупликации базы знаний:
// группировка — подсказка админу, а не жёсткое слияние.
const groupThreshold = 0.6

// chatHistoryWindow — сколько последних реплик уходит в контекст анализа.
const chatHistoryWindow = 5

// TicketService — жизненный цикл тикета: создание с ИИ-перехватом,
// резолюция (одиночная и массовая), вопросы пользователю, удаление.
type TicketService struct {
	tickets  store.TicketStore
	kb       *KnowledgeService
	analyzer assist.Analyzer
	producer kafka.TicketEventProducer
	notify   notifier.Notifier
}

func NewTicketService(
	tickets store.TicketStore,
	kb *KnowledgeService,
	analyzer assist.Analyzer,
	producer kafka.TicketEventProducer,
	notify notifier.Notifier,
) *TicketService {
	return &TicketService{
		tickets:  tickets,
		kb:       kb,
		analyzer: analyzer,
		producer: producer,
		notify:   notify,
	}
}

func (s *TicketService) List(ctx context.Context) ([]model.Ticket, error) {
	return s.tickets.List(ctx)
}

func (s *TicketService) Get(ctx context.Context, id string) (*model.Ticket, error) {
	return s.tickets.Get(ctx, id)
}

// ChatTurn — реплика диалога в запросах создания/анализа.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateTicketInput — параметры создания тикета.
type CreateTicketInput struct {
	Query       string
	History     []ChatTurn
	Users       []string
	SessionID   string
	ThreadID    string
	ForceCreate bool
}

// Статусы результата создания.
const (
	CreateStatusSuggested = "suggested"
	CreateStatusCreated   = "created"
	CreateStatusExists    = "exists"
)

// CreateResult — исход POST /tickets: либо предложенное решение без тикета,
// либо созданный тикет, либо уже существующий тикет этой сессии.
type CreateResult struct {
	Status     string `json:"status"`
	TicketID   string `json:"ticket_id,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Solution   string `json:"solution,omitempty"`
}

// Create анализирует обращение и при необходимости заводит тикет.
//
// Перехват: без force_create высокая или средняя уверенность модели означает,
// что решение предлагается сразу и тикет НЕ создаётся. Идемпотентность: если
// по session_id уже есть открытый тикет, второй не создаётся.
func (s *TicketService) Create(ctx context.Context, in CreateTicketInput) (*CreateResult, error) {
	if in.SessionID != "" {
		existing, err := s.openTicketForSession(ctx, in.SessionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &CreateResult{Status: CreateStatusExists, TicketID: existing.ID}, nil
		}
	}

	analysis := s.analyzer.Analyze(ctx, in.Query, s.kb.ContextSummary(ctx, in.Query), assist.ModeTicket)

	if !in.ForceCreate && (analysis.Confidence == "high" || analysis.Confidence == "medium") {
		return &CreateResult{
			Status:     CreateStatusSuggested,
			Confidence: analysis.Confidence,
			Solution:   analysis.SolutionDraft,
		}, nil
	}

	meta := analysis.TicketMetadata
	if meta.Title == "" {
		meta.Title = "Support Request"
	}
	if meta.Category == "" {
		meta.Category = model.CategoryOthers
	}
	if meta.Subcategory == "" {
		meta.Subcategory = "General"
	}

	ticket := &model.Ticket{
		Title:       meta.Title,
		Query:       in.Query,
		Category:    meta.Category,
		Subcategory: meta.Subcategory,
		AIDraft:     analysis.SolutionDraft,
		Status:      model.TicketStatusPending,
		History:     buildHistory(in),
		Users:       in.Users,
		ThreadID:    in.ThreadID,
		SessionID:   in.SessionID,
		// Создание подтверждается синхронно, отложенных уведомлений нет.
		Notified: true,
	}
	if anchor := s.findGroupAnchor(ctx, ticket); anchor != "" {
		ticket.GroupID = anchor
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.producer.ProduceTicketEvent(ctx, kafka.EventTicketCreated, ticket)

	res := &CreateResult{
		Status:     CreateStatusCreated,
		TicketID:   ticket.ID,
		Confidence: analysis.Confidence,
	}
	if analysis.Confidence == "high" {
		res.Solution = analysis.SolutionDraft
	}
	return res, nil
}

func buildHistory(in CreateTicketInput) []model.HistoryEntry {
	now := time.Now().Format(model.HistoryTimeLayout)
	if len(in.History) == 0 {
		return []model.HistoryEntry{{Role: "user", Message: in.Query, Time: now}}
	}
	out := make([]model.HistoryEntry, 0, len(in.History))
	for _, turn := range in.History {
		out = append(out, model.HistoryEntry{Role: turn.Role, Message: turn.Content, Time: now})
	}
	return out
}

func (s *TicketService) openTicketForSession(ctx context.Context, sessionID string) (*model.Ticket, error) {
	tickets, err := s.tickets.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].SessionID == sessionID && tickets[i].Status.IsOpen() {
			return &tickets[i], nil
		}
	}
	return nil, nil
}

// findGroupAnchor ищет среди открытых Pending тикетов той же категории самый
// похожий запрос и возвращает его group_id. Возвращается именно якорь группы,
// а не ID соседа — группы не выстраиваются в цепочки.
func (s *TicketService) findGroupAnchor(ctx context.Context, t *model.Ticket) string {
	tickets, err := s.tickets.List(ctx)
	if err != nil {
		log.Printf("tickets: group scan: %v", err)
		return ""
	}
	best := ""
	bestRatio := 0.0
	for i := range tickets {
		other := &tickets[i]
		if other.Status != model.TicketStatusPending || other.Category != t.Category {
			continue
		}
		if r := textmatch.Ratio(t.Query, other.Query); r >= groupThreshold && r > bestRatio {
			best, bestRatio = other.GroupID, r
		}
	}
	return best
}

// Broadcast закрывает тикет финальным ответом и пишет решение в базу знаний.
// Повторная резолюция уже закрытого тикета — no-op без ошибки.
func (s *TicketService) Broadcast(ctx context.Context, ticketID, finalAnswer string) (int, error) {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if t.Status == model.TicketStatusResolved {
		return 1, nil
	}
	t.Status = model.TicketStatusResolved
	t.FinalAnswer = finalAnswer
	t.Notified = false
	if err := s.tickets.Update(ctx, t); err != nil {
		return 0, err
	}
	s.producer.ProduceTicketEvent(ctx, kafka.EventTicketResolved, t)
	s.notify.NotifyTicketAsync(t, "")
	s.kb.LearnResolution(ctx, t.Category, t.Subcategory, t.Query, finalAnswer)
	return 1, nil
}

// BroadcastAll закрывает одним ответом все Pending тикеты из списка ID (или,
// если список пуст, все Pending тикеты категории). Возвращает ID закрытых
// тикетов: вызывающий по разнице со своим списком видит, что было пропущено.
func (s *TicketService) BroadcastAll(ctx context.Context, ticketIDs []string, category, finalAnswer string) ([]string, error) {
	tickets, err := s.tickets.List(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(ticketIDs))
	for _, id := range ticketIDs {
		wanted[id] = struct{}{}
	}

	var resolved []string
	for i := range tickets {
		t := &tickets[i]
		if t.Status != model.TicketStatusPending {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[t.ID]; !ok {
				continue
			}
		} else if category == "" || t.Category != category {
			continue
		}

		t.Status = model.TicketStatusResolved
		t.FinalAnswer = finalAnswer
		t.Notified = false
		if err := s.tickets.Update(ctx, t); err != nil {
			return resolved, fmt.Errorf("resolve %s: %w", t.ID, err)
		}
		s.producer.ProduceTicketEvent(ctx, kafka.EventTicketResolved, t)
		s.notify.NotifyTicketAsync(t, "")
		resolved = append(resolved, t.ID)
	}

	s.kb.LearnBatchResolution(ctx, category, len(resolved), finalAnswer)
	return resolved, nil
}

// Ask отправляет пользователю уточняющий вопрос: тикет переходит в
// Awaiting Info, вопрос дописывается в историю.
func (s *TicketService) Ask(ctx context.Context, ticketID, question string) error {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	t.Status = model.TicketStatusAwaitingInfo
	t.History = append(t.History, model.HistoryEntry{
		Role:    "admin",
		Message: question,
		Time:    time.Now().Format(model.HistoryTimeLayout),
	})
	t.Notified = false
	if err := s.tickets.Update(ctx, t); err != nil {
		return err
	}
	s.producer.ProduceTicketEvent(ctx, kafka.EventTicketAwaitingInfo, t)
	s.notify.NotifyTicketAsync(t, question)
	return nil
}

// SelfResolve — пользователь закрывает свой тикет сам (подсказка ИИ помогла).
func (s *TicketService) SelfResolve(ctx context.Context, ticketID string) error {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	t.Status = model.TicketStatusSelfResolved
	t.FinalAnswer = "User marked as resolved based on AI suggestion."
	t.History = append(t.History, model.HistoryEntry{
		Role:    "user",
		Message: "This solution worked for me. Closing ticket.",
		Time:    time.Now().Format(model.HistoryTimeLayout),
	})
	return s.tickets.Update(ctx, t)
}

// AckNotification помечает уведомление по тикету доставленным (вызывает
// бот-релей после успешной отправки).
func (s *TicketService) AckNotification(ctx context.Context, ticketID string) error {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	t.Notified = true
	return s.tickets.Update(ctx, t)
}

func (s *TicketService) Delete(ctx context.Context, ticketID string) error {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		return err
	}
	s.producer.ProduceTicketEvent(ctx, kafka.EventTicketDeleted, t)
	return nil
}

// ChatAnalysis — ответ /chat/analyze для портала пользователя.
type ChatAnalysis struct {
	Response           string          `json:"response"`
	EscalationRequired bool            `json:"escalation_required"`
	Confidence         string          `json:"confidence"`
	IsITRelated        bool            `json:"is_it_related"`
	Metadata           assist.Metadata `json:"metadata"`
	Summary            string          `json:"summary"`
}

// Ключевые слова, форсирующие эскалацию независимо от мнения модели.
var escalationKeywords = []string{"ticket", "admin", "escalate"}

// AnalyzeChat отвечает на сообщение в чате. Тикет здесь не создаётся:
// эскалацию инициирует клиент отдельным POST /tickets.
func (s *TicketService) AnalyzeChat(ctx context.Context, message string, history []ChatTurn) *ChatAnalysis {
	var b strings.Builder
	start := 0
	if len(history) > chatHistoryWindow {
		start = len(history) - chatHistoryWindow
	}
	for _, turn := range history[start:] {
		role := "AI"
		if turn.Role == "user" {
			role = "User"
		}
		b.WriteString(role + ": " + turn.Content + "\n")
	}
	b.WriteString("\nUser: " + message)
	fullPrompt := b.String()

	analysis := s.analyzer.Analyze(ctx, fullPrompt, s.kb.ContextSummary(ctx, fullPrompt), assist.ModeChat)

	escalate := analysis.EscalationRequired
	if !escalate {
		lower := strings.ToLower(message)
		for _, kw := range escalationKeywords {
			if strings.Contains(lower, kw) {
				escalate = true
				break
			}
		}
	}

	summary := analysis.Summary
	if summary == "" {
		summary = message
	}
	return &ChatAnalysis{
		Response:           analysis.SolutionDraft,
		EscalationRequired: escalate,
		Confidence:         analysis.Confidence,
		IsITRelated:        analysis.IsITRelated,
		Metadata:           analysis.TicketMetadata,
		Summary:            summary,
	}
}
