package model

import (
	"fmt"
	"time"
)

// Severity is the severity of a user facing notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Validate checks the severity is known.
func (s Severity) Validate() error {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return nil
	}
	return fmt.Errorf("unknown severity %q: %w", s, ErrNotValid)
}

// Notification is a bounded lifetime status message.
type Notification struct {
	ID        uint64    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}
