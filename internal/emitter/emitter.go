// Package emitter delivers activity events to a bucket using heartbeat
// semantics: an event that continues the previous one extends it instead of
// being stored separately.
package emitter

import (
	"context"
	"fmt"
	"os"

	"github.com/shotwatch/shotwatch/internal/models"
)

// EventType is the bucket type of screenshot events.
const EventType = "screenshot"

// Emitter is the sink of the heartbeat loop.
type Emitter interface {
	// WaitForReady blocks until the sink accepts requests.
	WaitForReady(ctx context.Context) error
	// CreateBucket is idempotent.
	CreateBucket(ctx context.Context, bucketID, eventType string) error
	// Heartbeat merges event into the bucket's latest event when it
	// continues it within pulsetime seconds, and stores it otherwise.
	Heartbeat(ctx context.Context, bucketID string, event *models.Event, pulsetime float64) error
	Close() error
}

// EmitError reports an event or bucket that could not be handed over.
type EmitError struct {
	Op     string
	Bucket string
	Err    error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}

// BucketID combines the watcher name with the host name.
func BucketID(client, hostname string) string {
	return client + "_" + hostname
}

// Hostname falls back to "unknown" when the host name cannot be read.
func Hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
