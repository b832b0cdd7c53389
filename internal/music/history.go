package music

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxHistoryEntries is the number of mood selections kept in history.
const MaxHistoryEntries = 10

// MaxHistoryTracks is the number of tracks snapshotted per history entry.
const MaxHistoryTracks = 10

// HistoryEntry records one successful mood-based fetch.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Mood      Mood      `json:"mood"`
	Date      string    `json:"date"` // "Jan 2, 2006"
	Time      string    `json:"time"` // "15:04"
	CreatedAt time.Time `json:"createdAt"`
	Tracks    []Track   `json:"tracks"`
}

// NewHistoryEntry creates an entry for mood with a snapshot of tracks.
// The ID is a UUIDv7, which is ordered by creation time.
func NewHistoryEntry(mood Mood, tracks []Track, now time.Time) (HistoryEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("generating history id: %w", err)
	}

	n := min(len(tracks), MaxHistoryTracks)
	snapshot := make([]Track, n)
	copy(snapshot, tracks[:n])

	return HistoryEntry{
		ID:        id.String(),
		Mood:      mood,
		Date:      now.Format("Jan 2, 2006"),
		Time:      now.Format("15:04"),
		CreatedAt: now,
		Tracks:    snapshot,
	}, nil
}
