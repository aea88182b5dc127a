package emitter

import (
	"context"
	"sync"

	"github.com/shotwatch/shotwatch/internal/database"
	"github.com/shotwatch/shotwatch/internal/models"
)

// LocalEmitter applies heartbeats straight into the sqlite store, for
// setups without a running collection service.
type LocalEmitter struct {
	repo     *database.Repository
	client   string
	hostname string
	mu       sync.Mutex
}

func NewLocalEmitter(repo *database.Repository, client, hostname string) *LocalEmitter {
	return &LocalEmitter{repo: repo, client: client, hostname: hostname}
}

func (e *LocalEmitter) WaitForReady(ctx context.Context) error {
	return ctx.Err()
}

func (e *LocalEmitter) CreateBucket(_ context.Context, bucketID, eventType string) error {
	_, err := e.repo.CreateBucket(&models.Bucket{
		ID:       bucketID,
		Name:     bucketID,
		Type:     eventType,
		Client:   e.client,
		Hostname: e.hostname,
	})
	if err != nil {
		return &EmitError{Op: "create bucket", Bucket: bucketID, Err: err}
	}
	return nil
}

func (e *LocalEmitter) Heartbeat(_ context.Context, bucketID string, event *models.Event, pulsetime float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, _, err := ApplyHeartbeat(e.repo, bucketID, event, pulsetime); err != nil {
		return &EmitError{Op: "heartbeat", Bucket: bucketID, Err: err}
	}
	return nil
}

// Close leaves the database open; its owner closes it.
func (e *LocalEmitter) Close() error {
	return nil
}
