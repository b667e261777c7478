package service

import (
	"context"
	"fmt"
	"log"

	"github.com/loopback-ai/helpdesk-service/internal/assist"
	"github.com/loopback-ai/helpdesk-service/internal/errs"
	"github.com/loopback-ai/helpdesk-service/internal/model"
	"github.com/loopback-ai/helpdesk-service/internal/store"
	"github.com/loopback-ai/helpdesk-service/internal/textmatch"
)

// kbDuplicateThreshold — порог похожести, выше которого запись считается
// дубликатом существующей.
const kbDuplicateThreshold = 0.85

// KnowledgeService — CRUD базы знаний плюс «обучение»: конвертация финальных
// ответов админа в записи базы.
type KnowledgeService struct {
	kb       store.KnowledgeStore
	analyzer assist.Analyzer
}

func NewKnowledgeService(kb store.KnowledgeStore, analyzer assist.Analyzer) *KnowledgeService {
	return &KnowledgeService{kb: kb, analyzer: analyzer}
}

func (s *KnowledgeService) List(ctx context.Context) ([]model.KBEntry, error) {
	return s.kb.List(ctx)
}

// Create стандартизует формулировку решения и добавляет запись.
func (s *KnowledgeService) Create(ctx context.Context, e *model.KBEntry) error {
	e.Resolution = s.analyzer.Standardize(ctx, e.Resolution)
	return s.kb.Create(ctx, e)
}

// Update заменяет запись по ID. Пустые Tags в запросе сохраняют существующие.
func (s *KnowledgeService) Update(ctx context.Context, e *model.KBEntry) error {
	if e.Tags == "" {
		entries, err := s.kb.List(ctx)
		if err != nil {
			return err
		}
		found := false
		for _, old := range entries {
			if old.ID == e.ID {
				e.Tags = old.Tags
				found = true
				break
			}
		}
		if !found {
			return errs.ErrEntryNotFound
		}
	}
	return s.kb.Update(ctx, e)
}

func (s *KnowledgeService) Delete(ctx context.Context, id string) error {
	return s.kb.Delete(ctx, id)
}

// ContextSummary — выжимка релевантных запросу записей для промпта анализатора.
func (s *KnowledgeService) ContextSummary(ctx context.Context, query string) string {
	entries, err := s.kb.List(ctx)
	if err != nil {
		log.Printf("kb: context summary: %v", err)
		return ""
	}
	return textmatch.ContextSummary(entries, query)
}

// entryExists проверяет, нет ли в базе записи, похожей на запрос
// (по полям Question и Issue).
func (s *KnowledgeService) entryExists(ctx context.Context, query string) bool {
	entries, err := s.kb.List(ctx)
	if err != nil {
		log.Printf("kb: dedup check: %v", err)
		return false
	}
	for _, e := range entries {
		for _, text := range []string{e.Question, e.Issue} {
			if text == "" {
				continue
			}
			if r := textmatch.Ratio(query, text); r > kbDuplicateThreshold {
				log.Printf("kb: duplicate prevented: %q similar to %q (%.2f)", query, text, r)
				return true
			}
		}
	}
	return false
}

// LearnResolution добавляет финальный ответ по тикету в базу знаний:
// фильтр качества, защита от дубликатов, стандартизация текста.
// Ошибки обучения не фатальны — тикет уже закрыт.
func (s *KnowledgeService) LearnResolution(ctx context.Context, category, subcategory, query, finalAnswer string) {
	if query == "" || finalAnswer == "" || !textmatch.IsQualitySolution(finalAnswer) {
		return
	}
	if s.entryExists(ctx, query) {
		return
	}
	if category == "" {
		category = "Support"
	}
	entry := &model.KBEntry{
		Category:   category,
		Question:   query,
		Resolution: s.analyzer.Standardize(ctx, finalAnswer),
		Tags:       fmt.Sprintf("%s;%s;Resolved", category, subcategory),
	}
	if err := s.kb.Create(ctx, entry); err != nil {
		log.Printf("kb: learn resolution: %v", err)
	}
}

// LearnBatchResolution — обучение по массовой рассылке: одна сводная запись
// вместо записи на каждый тикет.
func (s *KnowledgeService) LearnBatchResolution(ctx context.Context, category string, resolved int, finalAnswer string) {
	if resolved == 0 || !textmatch.IsQualitySolution(finalAnswer) {
		return
	}
	if category == "" {
		category = "Batch"
	}
	batchQuery := fmt.Sprintf("Batch Resolved: %d tickets", resolved)
	if s.entryExists(ctx, batchQuery) {
		return
	}
	entry := &model.KBEntry{
		Category:   category,
		Question:   batchQuery,
		Resolution: s.analyzer.Standardize(ctx, finalAnswer),
		Tags:       fmt.Sprintf("%s;BatchResolved", category),
	}
	if err := s.kb.Create(ctx, entry); err != nil {
		log.Printf("kb: learn batch resolution: %v", err)
	}
}
