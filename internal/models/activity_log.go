package models

import "time"

// ActivityLog records one tool or API invocation for usage analysis.
// Best-effort: writes are async and failures never affect the call itself.
type ActivityLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Operation  string    `json:"operation" gorm:"size:64;not null;index"`
	DurationMS int64     `json:"duration_ms" gorm:"not null"`
	Success    bool      `json:"success" gorm:"not null"`
	ErrorKind  string    `json:"error_kind,omitempty" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}
