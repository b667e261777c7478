package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/loopback-ai/helpdesk-service/internal/errs"
	"github.com/loopback-ai/helpdesk-service/internal/model"
)

// Путь CSV базы знаний внутри DATA_DIR (имя унаследовано от исходной базы).
const (
	KBDirName  = "knowledge_base"
	KBFileName = "Workplace_IT_Support_Database.csv"
)

var kbHeader = []string{"ID", "Category", "Issue", "Question", "Resolution", "Tags"}

// KnowledgeStore хранит базу знаний в CSV. Update и Delete переписывают файл
// через временный с rename, как и исходная система.
type KnowledgeStore struct {
	mu   sync.Mutex
	path string
}

func NewKnowledgeStore(dataDir string) (*KnowledgeStore, error) {
	dir := filepath.Join(dataDir, KBDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kb dir: %w", err)
	}
	return &KnowledgeStore{path: filepath.Join(dir, KBFileName)}, nil
}

// load читает все записи. Колонки сопоставляются по заголовку, а не по
// позиции: внешний пайплайн мог переставить или добавить колонки.
func (s *KnowledgeStore) load() ([]model.KBEntry, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	entries := make([]model.KBEntry, 0, len(records)-1)
	for _, row := range records[1:] {
		entries = append(entries, model.KBEntry{
			ID:         field(row, "ID"),
			Category:   field(row, "Category"),
			Issue:      field(row, "Issue"),
			Question:   field(row, "Question"),
			Resolution: field(row, "Resolution"),
			Tags:       field(row, "Tags"),
		})
	}
	return entries, nil
}

func (s *KnowledgeStore) save(entries []model.KBEntry) error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(kbHeader); err == nil {
		for _, e := range entries {
			if err = w.Write(entryRow(e)); err != nil {
				break
			}
		}
	}
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func entryRow(e model.KBEntry) []string {
	// Issue устарело, пишется пустым.
	return []string{e.ID, e.Category, "", e.Question, e.Resolution, e.Tags}
}

func (s *KnowledgeStore) List(ctx context.Context) ([]model.KBEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Create дописывает запись в конец файла; отсутствующий файл создаётся
// вместе с заголовком.
func (s *KnowledgeStore) Create(ctx context.Context, e *model.KBEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()[:8]
	}
	e.Issue = ""

	_, statErr := os.Stat(s.path)
	newFile := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	w := csv.NewWriter(f)
	if newFile {
		err = w.Write(kbHeader)
	}
	if err == nil {
		err = w.Write(entryRow(*e))
	}
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append %s: %w", s.path, err)
	}
	return nil
}

func (s *KnowledgeStore) Update(ctx context.Context, e *model.KBEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == e.ID {
			e.Issue = ""
			entries[i] = *e
			return s.save(entries)
		}
	}
	return errs.ErrEntryNotFound
}

func (s *KnowledgeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return errs.ErrEntryNotFound
	}
	return s.save(kept)
}
