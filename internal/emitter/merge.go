package emitter

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/shotwatch/shotwatch/internal/models"
)

// Merge returns last extended to cover next, or nil when next does not
// continue last. Two events merge iff their data is equal and next starts
// no earlier than last and no later than pulsetime seconds after last ends.
func Merge(last, next *models.Event, pulsetime float64) *models.Event {
	if last == nil || next == nil || !sameData(last.Data, next.Data) {
		return nil
	}

	windowEnd := last.End().Add(seconds(pulsetime))
	if next.Timestamp.Before(last.Timestamp) || next.Timestamp.After(windowEnd) {
		return nil
	}

	merged := last.Clone()
	merged.Duration = math.Max(last.Duration, next.End().Sub(last.Timestamp).Seconds())
	return merged
}

// sameData compares the JSON encodings, which sort map keys, so that
// values decoded from storage compare equal to freshly built ones.
func sameData(a, b map[string]any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// EventStore is the storage needed to apply heartbeats.
type EventStore interface {
	LatestEvent(bucketID string) (*models.Event, error)
	InsertEvent(event *models.Event) error
	UpdateEvent(event *models.Event) error
}

// ApplyHeartbeat merges event into the latest stored event of the bucket
// or inserts it. It returns the stored event and whether a merge happened.
// Callers serialize calls per bucket.
func ApplyHeartbeat(store EventStore, bucketID string, event *models.Event, pulsetime float64) (*models.Event, bool, error) {
	last, err := store.LatestEvent(bucketID)
	if err != nil {
		return nil, false, err
	}

	if merged := Merge(last, event, pulsetime); merged != nil {
		if err := store.UpdateEvent(merged); err != nil {
			return nil, false, err
		}
		return merged, true, nil
	}

	stored := event.Clone()
	stored.ID = 0
	stored.BucketID = bucketID
	if err := store.InsertEvent(stored); err != nil {
		return nil, false, err
	}
	return stored, false, nil
}
