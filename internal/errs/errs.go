package errs

import "errors"

// Доменные ошибки. Хендлеры транслируют их в HTTP-статусы.
var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrEntryNotFound  = errors.New("knowledge base entry not found")
)
