// Package file — файловое хранилище: тикеты в одном JSON-массиве, база знаний
// в CSV. Форматы совместимы с исходной системой, записи атомарные
// (tmp + rename).
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loopback-ai/helpdesk-service/internal/errs"
	"github.com/loopback-ai/helpdesk-service/internal/model"
)

// TicketsFileName — имя файла базы тикетов внутри DATA_DIR.
const TicketsFileName = "tickets_db.json"

// idSeqFloor — нумерация тикетов начинается с TKT-1001.
const idSeqFloor = 1000

// TicketStore хранит все тикеты в одном JSON-файле. Каждая мутация
// перечитывает и перезаписывает файл целиком под мьютексом: объёмы
// хелпдеска это позволяют, зато внешние правки файла подхватываются.
type TicketStore struct {
	mu   sync.Mutex
	path string
}

func NewTicketStore(dataDir string) (*TicketStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return &TicketStore{path: filepath.Join(dataDir, TicketsFileName)}, nil
}

// load читает базу. Отсутствующий или битый файл читается как пустая база
// (поведение исходной системы), битый — с диагностикой в лог.
func (s *TicketStore) load() ([]model.Ticket, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var tickets []model.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		log.Printf("store: %s is not valid JSON, treating as empty: %v", s.path, err)
		return nil, nil
	}
	return tickets, nil
}

func (s *TicketStore) save(tickets []model.Ticket) error {
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	data, err := json.MarshalIndent(tickets, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal tickets: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// nextID сканирует существующие ID и выдаёт следующий "TKT-<n>".
// Нечисловые ID пропускаются (легаси-записи).
func nextID(tickets []model.Ticket) string {
	maxID := idSeqFloor
	for _, t := range tickets {
		n, err := strconv.Atoi(strings.TrimPrefix(t.ID, "TKT-"))
		if err != nil {
			continue
		}
		if n > maxID {
			maxID = n
		}
	}
	return fmt.Sprintf("TKT-%d", maxID+1)
}

func (s *TicketStore) List(ctx context.Context) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *TicketStore) Get(ctx context.Context, id string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].ID == id {
			return &tickets[i], nil
		}
	}
	return nil, errs.ErrTicketNotFound
}

func (s *TicketStore) Create(ctx context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load()
	if err != nil {
		return err
	}
	t.ID = nextID(tickets)
	if t.GroupID == "" {
		t.GroupID = t.ID
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	return s.save(append(tickets, *t))
}

func (s *TicketStore) Update(ctx context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load()
	if err != nil {
		return err
	}
	for i := range tickets {
		if tickets[i].ID == t.ID {
			t.UpdatedAt = time.Now().UTC()
			tickets[i] = *t
			return s.save(tickets)
		}
	}
	return errs.ErrTicketNotFound
}

func (s *TicketStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load()
	if err != nil {
		return err
	}
	kept := tickets[:0]
	found := false
	for _, t := range tickets {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return errs.ErrTicketNotFound
	}
	return s.save(kept)
}
