// Package assist — анализ обращений через OpenAI-совместимый chat-completions
// API: классификация, черновик решения, признак эскалации, а также приведение
// ответов к виду записи базы знаний.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Mode — режим промпта: chat отвечает пользователю, ticket готовит метаданные
// и черновик для админа.
type Mode string

const (
	ModeChat   Mode = "chat"
	ModeTicket Mode = "ticket"
)

type Metadata struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// Analysis — структурированный результат анализа обращения.
type Analysis struct {
	Confidence         string   `json:"confidence"`
	Summary            string   `json:"summary"`
	TicketMetadata     Metadata `json:"ticket_metadata"`
	SolutionDraft      string   `json:"solution_draft"`
	EscalationRequired bool     `json:"escalation_required"`
	IsITRelated        bool     `json:"is_it_related"`
}

// Analyzer — то, что нужно сервисному слою от ИИ (подменяется фейком в тестах).
type Analyzer interface {
	Analyze(ctx context.Context, query, kbContext string, mode Mode) *Analysis
	Standardize(ctx context.Context, text string) string
}

// Client реализует Analyzer поверх go-openai. Сбои анализа не валят запрос:
// Analyze всегда возвращает результат, при ошибке — с confidence "low" и
// диагностикой в черновике (поведение исходной системы).
type Client struct {
	api   *openai.Client
	model string
}

// Option настраивает Client.
type Option func(*openai.ClientConfig)

// WithBaseURL направляет клиента на совместимый API (или тестовый сервер).
func WithBaseURL(url string) Option {
	return func(cfg *openai.ClientConfig) { cfg.BaseURL = url }
}

// NewClient создаёт анализатор. Пустой apiKey допустим: все вызовы будут
// деградировать в ответ "System Error: No API Key".
func NewClient(apiKey, model string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Client{model: model}
	if apiKey != "" {
		c.api = openai.NewClientWithConfig(cfg)
	}
	return c
}

const chatPromptTemplate = `You are a Tier 1 IT Support AI.
Context:
%s

User: %s

Task: Respond directly. If issue requires admin/hardware/account fix or user asks for ticket, or if the message is a test message, set "escalation_required": true. Else false.
If the message is a test message, set escalation_required to false, and tell the user that the system is running well.
Return JSON:
{
  "solution_draft": "Response...",
  "escalation_required": true|false,
  "confidence": "high|medium|low",
  "is_it_related": true|false,
  "summary": "Standardized, professional issue title (e.g. 'VPN Access Failure' or 'Laptop Screen Replacement Request'). Avoid 'User reports' or 'Customer needs'. Just state the issue.",
  "ticket_metadata": {
    "title": "Title",
    "category": "Category",
    "subcategory": "Subcategory"
  }
}`

const ticketPromptTemplate = `You are an IT Support AI.
Context:
%s

User: "%s"

Task: Analyze, generate metadata, and write Admin solution draft (1st person).
Return JSON:
{
  "confidence": "high|medium|low",
  "summary": "Standardized, professional issue title (e.g. 'VPN Access Failure'). Avoid 'User reports'. Just state the issue.",
  "ticket_metadata": {
    "title": "Issue Summary",
    "category": "Network|Hardware|Software|Account|Facility|Security|Others",
    "subcategory": "Subcategory (Max 2 words)"
  },
  "solution_draft": "Admin draft...",
  "escalation_required": true,
  "is_it_related": true
}`

func errorAnalysis(draft string) *Analysis {
	return &Analysis{
		Confidence:    "low",
		Summary:       "System Error",
		SolutionDraft: draft,
		TicketMetadata: Metadata{
			Title:       "Error",
			Category:    "Others",
			Subcategory: "System Error",
		},
	}
}

// Analyze прогоняет запрос через модель в заданном режиме. kbContext — выжимка
// релевантных записей базы знаний (textmatch.ContextSummary).
func (c *Client) Analyze(ctx context.Context, query, kbContext string, mode Mode) *Analysis {
	if c.api == nil {
		return errorAnalysis("System Error: No API Key.")
	}
	tpl := ticketPromptTemplate
	if mode == ModeChat {
		tpl = chatPromptTemplate
	}
	prompt := fmt.Sprintf(tpl, kbContext, query)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		log.Printf("assist: analyze: %v", err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return errorAnalysis("AI Service Busy: quota exhausted. Please try again in a few minutes.")
		}
		return errorAnalysis("System Error: " + err.Error())
	}
	if len(resp.Choices) == 0 {
		return errorAnalysis("System Error: empty completion")
	}

	content := stripFences(resp.Choices[0].Message.Content)
	a, err := parseAnalysis(content)
	if err != nil {
		// Модель вернула не-JSON: отдаём сырой текст с низкой уверенностью.
		log.Printf("assist: completion is not valid JSON: %v", err)
		return &Analysis{
			Confidence:    "low",
			Summary:       query,
			SolutionDraft: content,
			IsITRelated:   true,
		}
	}
	return a
}

// Standardize переписывает ответ админа в стандартизованную формулировку для
// базы знаний. При любой ошибке возвращает исходный текст.
func (c *Client) Standardize(ctx context.Context, text string) string {
	if c.api == nil || text == "" {
		return text
	}
	prompt := fmt.Sprintf(`Rewrite the following support response into a standardized, technical resolution for a Knowledge Base.
Rules:
1. Remove pleasantries (Hi, Thanks, Sorry, 'I will...').
2. Use imperative or objective tone (e.g., 'Connect to VPN...' or 'Ticket #123 created for hardware replacement').
3. Keep it concise.
4. OUTPUT PLAIN TEXT ONLY. Do NOT use markdown formatting (no bold **, no italics *, no code blocks).
5. Do NOT include prefixes like "KB Resolution:" or "Resolution:". Start directly with the action.

Input: "%s"`, text)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		log.Printf("assist: standardize: %v", err)
		return text
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}
