package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/loopback-ai/helpdesk-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// События жизненного цикла тикета.
const (
	EventTicketCreated      = "ticket.created"
	EventTicketUpdated      = "ticket.updated"
	EventTicketResolved     = "ticket.resolved"
	EventTicketAwaitingInfo = "ticket.awaiting_info"
	EventTicketDeleted      = "ticket.deleted"
)

// TicketEventProducer — интерфейс для отправки событий тикета в Kafka (для
// подмены моком в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, t *model.Ticket)
}

// Producer пишет события тикетов в топик Kafka (best-effort, не блокирует API).
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer создаёт продюсер. Если brokers или topic пустые — методы no-op.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{}
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// ProduceTicketEvent отправляет событие тикета в топик. Ошибки пишутся в лог
// и не возвращаются: события вторичны относительно ответа API.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, t *model.Ticket) {
	if p.writer == nil || t == nil {
		return
	}
	msg := map[string]interface{}{
		"event":        event,
		"ticket_id":    t.ID,
		"title":        t.Title,
		"query":        t.Query,
		"category":     t.Category,
		"subcategory":  t.Subcategory,
		"status":       string(t.Status),
		"group_id":     t.GroupID,
		"final_answer": t.FinalAnswer,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("kafka: marshal ticket event: %v", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(t.ID), Value: body}); err != nil {
		log.Printf("kafka: write ticket event: %v", err)
	}
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
