package model

import "time"

type TicketStatus string

const (
	TicketStatusPending      TicketStatus = "Pending"
	TicketStatusAwaitingInfo TicketStatus = "Awaiting Info"
	TicketStatusResolved     TicketStatus = "Resolved"
	TicketStatusSelfResolved TicketStatus = "Self-Resolved"
)

// IsOpen — тикет ещё не закрыт (виден в очереди админа).
func (s TicketStatus) IsOpen() bool {
	return s == TicketStatusPending || s == TicketStatusAwaitingInfo
}

// Категории, которые выставляет внешний классификатор. Этот слой их не
// валидирует: фильтрация по категории работает и с незнакомой меткой.
const (
	CategoryNetwork  = "Network"
	CategoryHardware = "Hardware"
	CategorySoftware = "Software"
	CategoryAccount  = "Account"
	CategoryFacility = "Facility"
	CategorySecurity = "Security"
	CategoryOthers   = "Others"
)

// HistoryEntry — одна реплика диалога по тикету.
// Time хранится как "HH:MM" (формат исходной базы).
type HistoryEntry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// HistoryTimeLayout — формат поля HistoryEntry.Time.
const HistoryTimeLayout = "15:04"

// Ticket — обращение пользователя. ID последовательный вида "TKT-1001".
// GroupID всегда заполнен и ссылается на якорный тикет группы (возможно на
// самого себя); группировка идёт только по совпадению GroupID.
type Ticket struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Query       string         `json:"query"`
	Category    string         `json:"category"`
	Subcategory string         `json:"subcategory,omitempty"`
	AIDraft     string         `json:"ai_draft"`
	AdminDraft  string         `json:"admin_draft,omitempty"`
	Status      TicketStatus   `json:"status"`
	GroupID     string         `json:"group_id"`
	FinalAnswer string         `json:"final_answer,omitempty"`
	History     []HistoryEntry `json:"history"`

	// Канал уведомлений: кому и куда сообщать о смене статуса.
	// Notified сбрасывается при переходе, требующем уведомления, и
	// взводится обратно через ack_notification.
	Users    []string `json:"users,omitempty"`
	ThreadID string   `json:"thread_id,omitempty"`
	Notified bool     `json:"notified"`

	// SessionID — ключ идемпотентности создания: одна сессия чата — один
	// открытый тикет.
	SessionID string `json:"session_id,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// KBEntry — запись базы знаний. JSON-ключи совпадают с заголовком CSV
// (так её отдаёт и исходная система). Issue устарело и всегда пишется пустым.
type KBEntry struct {
	ID         string `json:"ID"`
	Category   string `json:"Category"`
	Issue      string `json:"Issue"`
	Question   string `json:"Question"`
	Resolution string `json:"Resolution"`
	Tags       string `json:"Tags"`
}
