// Package store — интерфейсы хранилищ тикетов и базы знаний.
// Реализации: file (JSON/CSV файлы исходной системы) и postgres (GORM).
package store

import (
	"context"

	"github.com/loopback-ai/helpdesk-service/internal/model"
)

// TicketStore — хранилище тикетов.
//
// Create выдаёт последовательный ID вида "TKT-<n>" (n от 1001) под своей
// блокировкой/транзакцией и, если GroupID пуст, замыкает группу на сам тикет —
// инвариант «у каждого тикета ровно один group_id» держится здесь.
type TicketStore interface {
	List(ctx context.Context) ([]model.Ticket, error)
	Get(ctx context.Context, id string) (*model.Ticket, error)
	Create(ctx context.Context, t *model.Ticket) error
	Update(ctx context.Context, t *model.Ticket) error
	Delete(ctx context.Context, id string) error
}

// KnowledgeStore — хранилище записей базы знаний. Только append/edit/delete,
// без версионирования.
//
// Create выдаёт 8-символьный ID, если он не задан. Update заменяет запись
// целиком по ID.
type KnowledgeStore interface {
	List(ctx context.Context) ([]model.KBEntry, error)
	Create(ctx context.Context, e *model.KBEntry) error
	Update(ctx context.Context, e *model.KBEntry) error
	Delete(ctx context.Context, id string) error
}
