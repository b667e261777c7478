// Package postgres — GORM-реализация хранилищ поверх Postgres.
// История и получатели уведомлений лежат в JSONB-колонках.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loopback-ai/helpdesk-service/internal/errs"
	"github.com/loopback-ai/helpdesk-service/internal/model"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open открывает соединение GORM.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	return db, nil
}

type ticketRow struct {
	ID          string         `gorm:"primaryKey;type:varchar(32)"`
	Title       string         `gorm:"type:varchar(255)"`
	Query       string         `gorm:"type:text"`
	Category    string         `gorm:"type:varchar(64);index"`
	Subcategory string         `gorm:"type:varchar(64)"`
	AIDraft     string         `gorm:"column:ai_draft;type:text"`
	AdminDraft  string         `gorm:"type:text"`
	Status      string         `gorm:"type:varchar(32);index"`
	GroupID     string         `gorm:"type:varchar(32);index"`
	FinalAnswer string         `gorm:"type:text"`
	History     datatypes.JSON `gorm:"type:jsonb"`
	Users       datatypes.JSON `gorm:"type:jsonb"`
	ThreadID    string         `gorm:"type:varchar(64)"`
	Notified    bool
	SessionID   string `gorm:"type:varchar(128);index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ticketRow) TableName() string { return "tickets" }

type kbRow struct {
	ID         string `gorm:"primaryKey;type:varchar(16)"`
	Category   string `gorm:"type:varchar(64);index"`
	Issue      string `gorm:"type:text"`
	Question   string `gorm:"type:text"`
	Resolution string `gorm:"type:text"`
	Tags       string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (kbRow) TableName() string { return "knowledge_base" }

func toTicketRow(t *model.Ticket) (*ticketRow, error) {
	history, err := json.Marshal(t.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	users, err := json.Marshal(t.Users)
	if err != nil {
		return nil, fmt.Errorf("marshal users: %w", err)
	}
	return &ticketRow{
		ID:          t.ID,
		Title:       t.Title,
		Query:       t.Query,
		Category:    t.Category,
		Subcategory: t.Subcategory,
		AIDraft:     t.AIDraft,
		AdminDraft:  t.AdminDraft,
		Status:      string(t.Status),
		GroupID:     t.GroupID,
		FinalAnswer: t.FinalAnswer,
		History:     datatypes.JSON(history),
		Users:       datatypes.JSON(users),
		ThreadID:    t.ThreadID,
		Notified:    t.Notified,
		SessionID:   t.SessionID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}, nil
}

func fromTicketRow(r *ticketRow) (*model.Ticket, error) {
	t := &model.Ticket{
		ID:          r.ID,
		Title:       r.Title,
		Query:       r.Query,
		Category:    r.Category,
		Subcategory: r.Subcategory,
		AIDraft:     r.AIDraft,
		AdminDraft:  r.AdminDraft,
		Status:      model.TicketStatus(r.Status),
		GroupID:     r.GroupID,
		FinalAnswer: r.FinalAnswer,
		ThreadID:    r.ThreadID,
		Notified:    r.Notified,
		SessionID:   r.SessionID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.History) > 0 {
		if err := json.Unmarshal(r.History, &t.History); err != nil {
			return nil, fmt.Errorf("unmarshal history of %s: %w", r.ID, err)
		}
	}
	if len(r.Users) > 0 {
		if err := json.Unmarshal(r.Users, &t.Users); err != nil {
			return nil, fmt.Errorf("unmarshal users of %s: %w", r.ID, err)
		}
	}
	return t, nil
}

// TicketStore — тикеты в Postgres.
type TicketStore struct {
	db *gorm.DB
}

func NewTicketStore(db *gorm.DB) *TicketStore {
	return &TicketStore{db: db}
}

func (s *TicketStore) List(ctx context.Context) ([]model.Ticket, error) {
	var rows []ticketRow
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Ticket, 0, len(rows))
	for i := range rows {
		t, err := fromTicketRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *TicketStore) Get(ctx context.Context, id string) (*model.Ticket, error) {
	var row ticketRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return fromTicketRow(&row)
}

func (s *TicketStore) Create(ctx context.Context, t *model.Ticket) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Последовательные ID; таблица блокируется, чтобы два создания не
		// взяли один номер.
		if err := tx.Exec("LOCK TABLE tickets IN EXCLUSIVE MODE").Error; err != nil {
			return err
		}
		var maxID int
		row := tx.Raw(
			`SELECT COALESCE(MAX(NULLIF(regexp_replace(id, '\D', '', 'g'), '')::int), 1000) FROM tickets`,
		).Row()
		if err := row.Scan(&maxID); err != nil {
			return err
		}
		if maxID < 1000 {
			maxID = 1000
		}
		t.ID = fmt.Sprintf("TKT-%d", maxID+1)
		if t.GroupID == "" {
			t.GroupID = t.ID
		}
		now := time.Now().UTC()
		t.CreatedAt = now
		t.UpdatedAt = now
		r, err := toTicketRow(t)
		if err != nil {
			return err
		}
		return tx.Create(r).Error
	})
}

func (s *TicketStore) Update(ctx context.Context, t *model.Ticket) error {
	t.UpdatedAt = time.Now().UTC()
	r, err := toTicketRow(t)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&ticketRow{}).Where("id = ?", t.ID).
		Select("*").Omit("id", "created_at").Updates(r)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

func (s *TicketStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&ticketRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

// KnowledgeStore — база знаний в Postgres.
type KnowledgeStore struct {
	db *gorm.DB
}

func NewKnowledgeStore(db *gorm.DB) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

func (s *KnowledgeStore) List(ctx context.Context) ([]model.KBEntry, error) {
	var rows []kbRow
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.KBEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.KBEntry{
			ID:         r.ID,
			Category:   r.Category,
			Issue:      r.Issue,
			Question:   r.Question,
			Resolution: r.Resolution,
			Tags:       r.Tags,
		})
	}
	return out, nil
}

func (s *KnowledgeStore) Create(ctx context.Context, e *model.KBEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()[:8]
	}
	e.Issue = ""
	return s.db.WithContext(ctx).Create(&kbRow{
		ID:         e.ID,
		Category:   e.Category,
		Issue:      e.Issue,
		Question:   e.Question,
		Resolution: e.Resolution,
		Tags:       e.Tags,
	}).Error
}

func (s *KnowledgeStore) Update(ctx context.Context, e *model.KBEntry) error {
	e.Issue = ""
	res := s.db.WithContext(ctx).Model(&kbRow{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
		"category":   e.Category,
		"issue":      e.Issue,
		"question":   e.Question,
		"resolution": e.Resolution,
		"tags":       e.Tags,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrEntryNotFound
	}
	return nil
}

func (s *KnowledgeStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&kbRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrEntryNotFound
	}
	return nil
}
