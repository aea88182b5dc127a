package emitter

import (
	"testing"
	"time"

	"github.com/shotwatch/shotwatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func ev(offset time.Duration, dur float64, app, title string) *models.Event {
	return &models.Event{
		Timestamp: t0.Add(offset),
		Duration:  dur,
		Data: map[string]any{
			models.KeyApplication: app,
			models.KeyTitle:       title,
			models.KeyScreenshot:  "/screenshots/a.png",
		},
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		last      *models.Event
		next      *models.Event
		pulsetime float64
		wantDur   float64
		merged    bool
	}{
		{"within pulsetime", ev(0, 5, "a", "t"), ev(21*time.Second, 5, "a", "t"), 21, 26, true},
		{"at window edge", ev(0, 5, "a", "t"), ev(26*time.Second, 5, "a", "t"), 21, 31, true},
		{"past window", ev(0, 5, "a", "t"), ev(27*time.Second, 5, "a", "t"), 21, 0, false},
		{"different title", ev(0, 5, "a", "t"), ev(10*time.Second, 5, "a", "u"), 21, 0, false},
		{"earlier than last", ev(10*time.Second, 5, "a", "t"), ev(0, 5, "a", "t"), 21, 0, false},
		{"contained keeps longer duration", ev(0, 60, "a", "t"), ev(10*time.Second, 5, "a", "t"), 21, 60, true},
		{"same instant", ev(0, 5, "a", "t"), ev(0, 5, "a", "t"), 0, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := Merge(tt.last, tt.next, tt.pulsetime)
			if !tt.merged {
				assert.Nil(t, merged)
				return
			}
			require.NotNil(t, merged)
			assert.Equal(t, tt.wantDur, merged.Duration)
			assert.True(t, merged.Timestamp.Equal(tt.last.Timestamp))
		})
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	last := ev(0, 5, "a", "t")
	next := ev(10*time.Second, 5, "a", "t")

	merged := Merge(last, next, 21)
	require.NotNil(t, merged)
	merged.Data["extra"] = true

	assert.Equal(t, 5.0, last.Duration)
	assert.NotContains(t, last.Data, "extra")
}

func TestMergeNil(t *testing.T) {
	assert.Nil(t, Merge(nil, ev(0, 5, "a", "t"), 21))
	assert.Nil(t, Merge(ev(0, 5, "a", "t"), nil, 21))
}

func TestMergeComparesDecodedData(t *testing.T) {
	last := ev(0, 5, "a", "t")
	last.Data["count"] = float64(3)
	next := ev(5*time.Second, 5, "a", "t")
	next.Data["count"] = 3

	assert.NotNil(t, Merge(last, next, 21))
}

type memStore struct {
	events []*models.Event
}

func (s *memStore) LatestEvent(bucketID string) (*models.Event, error) {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].BucketID == bucketID {
			return s.events[i].Clone(), nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertEvent(e *models.Event) error {
	e.ID = uint(len(s.events) + 1)
	s.events = append(s.events, e.Clone())
	return nil
}

func (s *memStore) UpdateEvent(e *models.Event) error {
	s.events[e.ID-1] = e.Clone()
	return nil
}

func TestApplyHeartbeat(t *testing.T) {
	store := &memStore{}

	stored, merged, err := ApplyHeartbeat(store, "b", ev(0, 5, "a", "t"), 21)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, "b", stored.BucketID)

	stored, merged, err = ApplyHeartbeat(store, "b", ev(20*time.Second, 5, "a", "t"), 21)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, 25.0, stored.Duration)

	_, merged, err = ApplyHeartbeat(store, "b", ev(40*time.Second, 5, "a", "other"), 21)
	require.NoError(t, err)
	assert.False(t, merged)

	_, merged, err = ApplyHeartbeat(store, "c", ev(41*time.Second, 5, "a", "other"), 21)
	require.NoError(t, err)
	assert.False(t, merged, "buckets are independent")

	require.Len(t, store.events, 3)
	assert.Equal(t, 25.0, store.events[0].Duration)
}

func TestBucketID(t *testing.T) {
	assert.Equal(t, "shotwatch_myhost", BucketID("shotwatch", "myhost"))
	assert.NotEmpty(t, Hostname())
}
