package models

import (
	"time"
)

// Data keys of a screenshot event.
const (
	KeyApplication = "application"
	KeyTitle       = "title"
	KeyScreenshot  = "screenshot"
)

// Bucket is a named stream of events from one watcher on one host.
type Bucket struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	Type      string    `gorm:"not null" json:"type"`
	Client    string    `gorm:"not null" json:"client"`
	Hostname  string    `gorm:"not null" json:"hostname"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created"`
}

// Event is one observation: a point in time, how long it stayed valid and
// the sampled data. Duration is in seconds.
type Event struct {
	ID        uint           `gorm:"primaryKey" json:"id,omitempty"`
	BucketID  string         `gorm:"not null;index:idx_bucket_ts" json:"-"`
	Timestamp time.Time      `gorm:"not null;index:idx_bucket_ts" json:"timestamp"`
	Duration  float64        `gorm:"not null;default:0" json:"duration"`
	Data      map[string]any `gorm:"serializer:json;not null" json:"data"`
}

// End is the instant the event stops covering.
func (e *Event) End() time.Time {
	return e.Timestamp.Add(time.Duration(e.Duration * float64(time.Second)))
}

// Clone returns a deep copy of the event's top-level fields and data map.
func (e *Event) Clone() *Event {
	c := *e
	c.Data = make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		c.Data[k] = v
	}
	return &c
}

// QueuedRequest is a collector call waiting to be delivered. Requests are
// sent in ID order.
type QueuedRequest struct {
	ID        uint      `gorm:"primaryKey"`
	Method    string    `gorm:"not null"`
	Path      string    `gorm:"not null"`
	Body      []byte    `gorm:"not null"`
	Attempts  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

type AppSummary struct {
	AppName      string  `json:"app_name"`
	TotalSeconds int64   `json:"total_seconds"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalHours   float64 `json:"total_hours"`
	EventCount   int     `json:"event_count"`
	Percentage   float64 `json:"percentage,omitempty"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period       ReportPeriod `json:"period"`
	Apps         []AppSummary `json:"apps"`
	TotalSeconds int64        `json:"total_seconds"`
	TotalMinutes float64      `json:"total_minutes"`
	TotalHours   float64      `json:"total_hours"`
	GeneratedAt  time.Time    `json:"generated_at"`
}
