// Package playback tracks what is playing within the active track list.
//
// The Controller does no audio work itself. An audio collaborator (the
// browser's audio element, behind the web API) reports ended, error, time
// and metadata events through the On* methods.
package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/justestif/moodtunes/internal/music"
)

// ErrTrackNotInList is returned by Play when the track is not in the list.
var ErrTrackNotInList = errors.New("track not in list")

// State is the controller's playback state.
type State string

const (
	Idle    State = "idle"
	Paused  State = "paused"
	Playing State = "playing"
)

// Outcome is the result of a controller operation. Unplayable tracks and
// exhausted skips are outcomes, not errors.
type Outcome string

const (
	OutcomePlaying         Outcome = "playing"
	OutcomePaused          Outcome = "paused"
	OutcomeUnplayable      Outcome = "unplayable"        // Current track has no preview
	OutcomeNoPlayableTrack Outcome = "no_playable_track" // Skip found nothing in that direction
	OutcomeEnded           Outcome = "ended"             // Track ended with nothing after it
	OutcomeNotLoaded       Outcome = "not_loaded"        // No track selected
)

// ListResolver returns the list the user is currently looking at.
// It is called on every skip so view switches are picked up.
type ListResolver func() []music.Track

// Snapshot is a copy of the controller state.
type Snapshot struct {
	State    State         `json:"state"`
	Index    int           `json:"index"`
	Track    *music.Track  `json:"track,omitempty"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
}

// Playing reports whether audio should be playing.
func (s Snapshot) Playing() bool {
	return s.State == Playing
}

// Controller is the playback state machine for one user.
type Controller struct {
	resolve ListResolver

	mu       sync.Mutex
	list     []music.Track // The list index was set against
	index    int           // -1 when idle
	playing  bool
	position time.Duration
	duration time.Duration

	// Snapshots wait in pending until the single delivering goroutine hands
	// them to observers, in the order the changes happened.
	observers  []func(Snapshot)
	pending    []Snapshot
	delivering bool
}

// NewController creates an idle controller. resolve may be nil, in which
// case skips stay within the list passed to Play.
func NewController(resolve ListResolver) *Controller {
	return &Controller{
		resolve: resolve,
		index:   -1,
	}
}

// OnChange registers fn to be called after every change of the current
// track or the playing flag. Calls are made without holding the
// controller's lock, one at a time and in order, possibly on the goroutine
// of a concurrent transition. fn may call any controller method.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    Idle,
		Index:    c.index,
		Position: c.position,
		Duration: c.duration,
	}
	if c.index >= 0 && c.index < len(c.list) {
		t := c.list[c.index]
		s.Track = &t
		s.State = Paused
		if c.playing {
			s.State = Playing
		}
	}
	return s
}

// Play selects track within list. A track without a preview is selected
// but left paused with OutcomeUnplayable.
func (c *Controller) Play(track music.Track, list []music.Track) (Outcome, error) {
	i := music.IndexOf(list, track.ID)
	if i < 0 {
		return "", ErrTrackNotInList
	}

	c.mu.Lock()
	c.list = append([]music.Track(nil), list...)
	c.index = i
	c.position, c.duration = 0, 0
	c.playing = c.list[i].Playable()

	out := OutcomePlaying
	if !c.playing {
		out = OutcomeUnplayable
	}
	c.unlockAndNotify()
	return out, nil
}

// TogglePlayPause flips between playing and paused.
func (c *Controller) TogglePlayPause() Outcome {
	c.mu.Lock()

	if c.index < 0 || c.index >= len(c.list) {
		c.mu.Unlock()
		return OutcomeNotLoaded
	}
	if !c.list[c.index].Playable() {
		c.mu.Unlock()
		return OutcomeUnplayable
	}

	c.playing = !c.playing
	out := OutcomePaused
	if c.playing {
		out = OutcomePlaying
	}
	c.unlockAndNotify()
	return out
}

// SkipNext moves to the next playable track in the active list.
func (c *Controller) SkipNext() Outcome {
	return c.skip(1, false)
}

// SkipPrevious moves to the previous playable track in the active list.
func (c *Controller) SkipPrevious() Outcome {
	return c.skip(-1, false)
}

// OnEnded handles the end of the current track. It advances like SkipNext;
// with nothing to advance to, playback pauses on the current track.
func (c *Controller) OnEnded() Outcome {
	return c.skip(1, true)
}

// OnError handles a failure of the audio collaborator by pausing.
func (c *Controller) OnError() Outcome {
	c.mu.Lock()
	if !c.playing {
		idle := c.index < 0
		c.mu.Unlock()
		if idle {
			return OutcomeNotLoaded
		}
		return OutcomePaused
	}
	c.playing = false
	c.unlockAndNotify()
	return OutcomePaused
}

// OnTimeUpdate records the playback position.
func (c *Controller) OnTimeUpdate(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = t
}

// OnLoaded records the duration of the current track.
func (c *Controller) OnLoaded(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
}

// skip scans the active list from the current track in dir, skipping
// tracks without a preview. When ended is set, failing to find a track
// pauses playback instead of leaving it unchanged.
func (c *Controller) skip(dir int, ended bool) Outcome {
	c.mu.Lock()

	list := c.list
	if c.resolve != nil {
		list = c.resolve()
	}

	cur := c.current(list)
	if next := scan(list, cur, dir); next >= 0 {
		c.list = append([]music.Track(nil), list...)
		c.index = next
		c.playing = true
		c.position, c.duration = 0, 0
		c.unlockAndNotify()
		return OutcomePlaying
	}

	if ended && c.index >= 0 {
		if c.playing {
			c.playing = false
			c.unlockAndNotify()
		} else {
			c.mu.Unlock()
		}
		return OutcomeEnded
	}

	c.mu.Unlock()
	return OutcomeNoPlayableTrack
}

// current returns the position of the current track within list. The track
// is located by ID; if list no longer contains it the stored index is used.
// c.mu must be held.
func (c *Controller) current(list []music.Track) int {
	if c.index < 0 {
		return -1
	}
	if c.index < len(c.list) {
		if i := music.IndexOf(list, c.list[c.index].ID); i >= 0 {
			return i
		}
	}
	return c.index
}

// scan returns the first playable index after cur in dir, or -1.
// Moving back from index 0 or forward from the last index finds nothing.
func scan(list []music.Track, cur, dir int) int {
	i := cur + dir
	if dir < 0 {
		if cur <= 0 {
			return -1
		}
		i = min(i, len(list)-1)
	}
	for ; i >= 0 && i < len(list); i += dir {
		if list[i].Playable() {
			return i
		}
	}
	return -1
}

// unlockAndNotify queues the new state for observers and releases c.mu.
// If no other goroutine is delivering, this one drains the queue.
// c.mu must be held.
func (c *Controller) unlockAndNotify() {
	if len(c.observers) == 0 {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, c.snapshotLocked())
	if c.delivering {
		c.mu.Unlock()
		return
	}

	c.delivering = true
	for len(c.pending) > 0 {
		batch, observers := c.pending, c.observers
		c.pending = nil
		c.mu.Unlock()

		for _, snap := range batch {
			for _, fn := range observers {
				fn(snap)
			}
		}

		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}
