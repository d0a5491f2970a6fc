package domain

import (
	"context"
	"time"
)

// SwitchStore holds the configured switch items.
type SwitchStore interface {
	List(ctx context.Context) ([]*SwitchItem, error)
	Get(ctx context.Context, id string) (*SwitchItem, error)
}

// HistoryAction is what a history record describes.
type HistoryAction string

const (
	HistoryToggle HistoryAction = "toggle"
	HistoryTest   HistoryAction = "test"
)

// HistoryRecord is one persisted toggle or command test.
type HistoryRecord struct {
	ID        string        `json:"id"`
	SwitchID  string        `json:"switch_id"`
	Action    HistoryAction `json:"action"`
	Role      CommandRole   `json:"role,omitempty"`
	TurnedOn  bool          `json:"turned_on"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// HistoryStore persists history records.
type HistoryStore interface {
	Append(ctx context.Context, rec HistoryRecord) error
	// List returns the newest records for a switch, newest first.
	// limit <= 0 means no limit.
	List(ctx context.Context, switchID string, limit int) ([]HistoryRecord, error)
	// Prune deletes records older than cutoff and returns how many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
