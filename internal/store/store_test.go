package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/justestif/moodtunes/internal/music"
)

// failingBackend fails every Put after failAfter successful ones.
type failingBackend struct {
	*MemoryBackend
	mu        sync.Mutex
	puts      int
	failAfter int
}

func (f *failingBackend) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.puts++
	fail := f.puts > f.failAfter
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Put(ctx, key, value)
}

func track(id string) music.Track {
	return music.Track{ID: id, Title: "Title " + id, Artist: "Artist " + id, Preview: "https://p/" + id}
}

func likedIDs(s *Store) []string {
	var ids []string
	for _, tr := range s.Liked() {
		ids = append(ids, tr.ID)
	}
	return ids
}

func entry(t *testing.T, mood music.Mood, ids ...string) music.HistoryEntry {
	t.Helper()
	tracks := make([]music.Track, len(ids))
	for i, id := range ids {
		tracks[i] = track(id)
	}
	e, err := music.NewHistoryEntry(mood, tracks, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryBackend(), "", nil)

	liked := []music.Track{track("a"), {ID: "b", Title: "No preview", AlbumArt: music.PlaceholderAlbumArt}}
	if err := s.Save(ctx, KeyLiked, liked); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	var gotLiked []music.Track
	if !s.Load(ctx, KeyLiked, &gotLiked) {
		t.Fatal("Load() = false")
	}
	if diff := deep.Equal(gotLiked, liked); diff != nil {
		t.Error(diff)
	}

	history := []music.HistoryEntry{entry(t, music.Happy, "x", "y")}
	if err := s.Save(ctx, KeyHistory, history); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	var gotHistory []music.HistoryEntry
	if !s.Load(ctx, KeyHistory, &gotHistory) {
		t.Fatal("Load() = false")
	}
	if diff := deep.Equal(gotHistory, history); diff != nil {
		t.Error(diff)
	}
}

func TestLoadMissingKey(t *testing.T) {
	s := Open(context.Background(), NewMemoryBackend(), "", nil)

	var v []music.Track
	if s.Load(context.Background(), "nothing", &v) {
		t.Error("Load() of missing key = true")
	}
}

func TestOpen_MalformedPayloadIsIgnoredNotDeleted(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	garbage := []byte(`[{"id": "a", "title": `)
	if err := backend.Put(ctx, KeyLiked, garbage); err != nil {
		t.Fatal(err)
	}
	if err := backend.Put(ctx, KeyHistory, []byte(`{"not":"an array"}`)); err != nil {
		t.Fatal(err)
	}

	s := Open(ctx, backend, "", nil)

	if got := s.Liked(); len(got) != 0 {
		t.Errorf("Liked() = %v, want empty", got)
	}
	if got := s.History(); len(got) != 0 {
		t.Errorf("History() = %v, want empty", got)
	}

	stored, found, err := backend.Get(ctx, KeyLiked)
	if err != nil || !found {
		t.Fatalf("malformed payload was removed: found=%v err=%v", found, err)
	}
	if string(stored) != string(garbage) {
		t.Errorf("malformed payload was modified: %q", stored)
	}
}

func TestOpen_TrimsOverlongHistoryInBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	seed := Open(ctx, backend, "u", nil)
	var long []music.HistoryEntry
	for i := 0; i < music.MaxHistoryEntries+2; i++ {
		long = append(long, entry(t, music.Calm, fmt.Sprintf("t%d", i)))
	}
	if err := seed.Save(ctx, KeyHistory, long); err != nil {
		t.Fatal(err)
	}

	s := Open(ctx, backend, "u", nil)
	if got := len(s.History()); got != music.MaxHistoryEntries {
		t.Fatalf("in memory: %d entries, want %d", got, music.MaxHistoryEntries)
	}

	var stored []music.HistoryEntry
	if !s.Load(ctx, KeyHistory, &stored) {
		t.Fatal("Load() = false")
	}
	if diff := deep.Equal(stored, s.History()); diff != nil {
		t.Errorf("backend differs from memory: %v", diff)
	}
}

func TestToggleLiked_Involution(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryBackend(), "", nil)

	if _, err := s.ToggleLiked(ctx, track("a")); err != nil {
		t.Fatal(err)
	}
	before := s.Liked()

	liked, err := s.ToggleLiked(ctx, track("b"))
	if err != nil || !liked {
		t.Fatalf("first toggle = %v, %v; want true, nil", liked, err)
	}
	if !s.IsLiked("b") {
		t.Error("IsLiked(b) = false after like")
	}

	liked, err = s.ToggleLiked(ctx, track("b"))
	if err != nil || liked {
		t.Fatalf("second toggle = %v, %v; want false, nil", liked, err)
	}
	if diff := deep.Equal(s.Liked(), before); diff != nil {
		t.Errorf("double toggle changed liked set: %v", diff)
	}
}

func TestToggleLiked_KeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryBackend(), "", nil)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.ToggleLiked(ctx, track(id)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.ToggleLiked(ctx, track("b")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ToggleLiked(ctx, track("b")); err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, tr := range s.Liked() {
		ids = append(ids, tr.ID)
	}
	if diff := deep.Equal(ids, []string{"a", "c", "b"}); diff != nil {
		t.Error(diff)
	}
}

func TestToggleLiked_ConcurrentNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := Open(ctx, backend, "", nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ToggleLiked(ctx, track(fmt.Sprint(i))); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := len(s.Liked()); got != n {
		t.Errorf("len(Liked()) = %d, want %d", got, n)
	}

	// The backend holds the same collection as memory.
	reopened := Open(ctx, backend, "", nil)
	if diff := deep.Equal(reopened.Liked(), s.Liked()); diff != nil {
		t.Error(diff)
	}
}

func TestToggleLiked_SaveFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), failAfter: 1}
	s := Open(ctx, backend, "", nil)

	if _, err := s.ToggleLiked(ctx, track("a")); err != nil {
		t.Fatal(err)
	}

	liked, err := s.ToggleLiked(ctx, track("b"))
	if err == nil {
		t.Fatal("ToggleLiked() error = nil, want save failure")
	}
	if liked {
		t.Error("ToggleLiked() reported liked after failed save")
	}
	if s.IsLiked("b") {
		t.Error("memory updated despite failed save")
	}

	if err := s.AppendHistory(ctx, entry(t, music.Calm)); err == nil {
		t.Error("AppendHistory() error = nil, want save failure")
	}
	if len(s.History()) != 0 {
		t.Error("history updated despite failed save")
	}
}

func TestAddLiked(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), failAfter: 2}
	s := Open(ctx, backend, "", nil)

	if _, err := s.ToggleLiked(ctx, track("b")); err != nil {
		t.Fatal(err)
	}

	added, err := s.AddLiked(ctx, []music.Track{track("a"), track("b"), {}, track("c"), track("a")})
	if err != nil {
		t.Fatalf("AddLiked() error = %v", err)
	}
	if added != 2 {
		t.Errorf("AddLiked() = %d, want 2", added)
	}
	if diff := deep.Equal(likedIDs(s), []string{"b", "a", "c"}); diff != nil {
		t.Error(diff)
	}

	// Nothing new means no write, so the failing backend is not reached.
	if added, err := s.AddLiked(ctx, []music.Track{track("c")}); err != nil || added != 0 {
		t.Errorf("AddLiked(existing) = %d, %v", added, err)
	}

	if _, err := s.AddLiked(ctx, []music.Track{track("d")}); err == nil {
		t.Error("AddLiked() error = nil, want save failure")
	}
	if s.IsLiked("d") {
		t.Error("track liked in memory after failed save")
	}
}

func TestAppendHistory_NewestFirstCapped(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := Open(ctx, backend, "", nil)

	var entries []music.HistoryEntry
	for j := 0; j < music.MaxHistoryEntries+1; j++ {
		e := entry(t, music.Happy)
		entries = append(entries, e)
		if err := s.AppendHistory(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got := s.History()
	if len(got) != music.MaxHistoryEntries {
		t.Fatalf("len(History()) = %d, want %d", len(got), music.MaxHistoryEntries)
	}
	if got[0].ID != entries[len(entries)-1].ID {
		t.Error("newest entry is not first")
	}
	if _, ok := s.HistoryEntry(entries[0].ID); ok {
		t.Error("oldest entry was not evicted")
	}
	if _, ok := s.HistoryEntry(entries[1].ID); !ok {
		t.Error("second-oldest entry was evicted")
	}

	reopened := Open(ctx, backend, "", nil)
	if diff := deep.Equal(reopened.History(), got); diff != nil {
		t.Errorf("backend disagrees with memory: %v", diff)
	}
}

func TestDeleteAndClearHistory(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := Open(ctx, backend, "", nil)

	a, b := entry(t, music.Happy, "1"), entry(t, music.Sad, "2")
	for _, e := range []music.HistoryEntry{a, b} {
		if err := s.AppendHistory(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteHistoryEntry(ctx, a.ID); err != nil {
		t.Fatalf("DeleteHistoryEntry() error = %v", err)
	}
	if err := s.DeleteHistoryEntry(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
	if got := Open(ctx, backend, "", nil).History(); len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("persisted history after delete = %v", got)
	}

	if err := s.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	if got := Open(ctx, backend, "", nil).History(); len(got) != 0 {
		t.Errorf("persisted history after clear = %v", got)
	}
}

func TestFilterHistory(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryBackend(), "", nil)

	for _, m := range []music.Mood{music.Happy, music.Sad, music.Happy} {
		if err := s.AppendHistory(ctx, entry(t, m)); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(s.FilterHistory(music.Happy)); got != 2 {
		t.Errorf("FilterHistory(happy) = %d entries, want 2", got)
	}
	if got := len(s.FilterHistory(music.Night)); got != 0 {
		t.Errorf("FilterHistory(night) = %d entries, want 0", got)
	}
	if got := len(s.FilterHistory("")); got != 3 {
		t.Errorf("FilterHistory(\"\") = %d entries, want 3", got)
	}
}

func TestSearchLiked(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryBackend(), "", nil)

	for _, tr := range []music.Track{
		{ID: "1", Title: "Blinding Lights", Artist: "The Weeknd"},
		{ID: "2", Title: "Levitating", Artist: "Dua Lipa"},
		{ID: "3", Title: "Save Your Tears", Artist: "The Weeknd"},
		{ID: "4", Title: "Halo", Artist: "Beyoncé"},
	} {
		if _, err := s.ToggleLiked(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	got := s.SearchLiked("weeknd")
	if len(got) != 2 {
		t.Fatalf("SearchLiked(weeknd) = %v, want 2 tracks", got)
	}
	for _, tr := range got {
		if tr.Artist != "The Weeknd" {
			t.Errorf("unexpected match %+v", tr)
		}
	}

	if got := s.SearchLiked("lvtng"); len(got) != 1 || got[0].ID != "2" {
		t.Errorf("SearchLiked(lvtng) = %v, want Levitating", got)
	}
	if got := s.SearchLiked("BEYONCE"); len(got) != 1 || got[0].ID != "4" {
		t.Errorf("SearchLiked(BEYONCE) = %v, want Halo", got)
	}
	if got := s.SearchLiked(""); len(got) != 4 {
		t.Errorf("SearchLiked(\"\") = %d tracks, want 4", len(got))
	}
	if got := s.SearchLiked("zzz"); len(got) != 0 {
		t.Errorf("SearchLiked(zzz) = %v, want none", got)
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	alice := Open(ctx, backend, "alice", nil)
	bob := Open(ctx, backend, "bob", nil)

	if _, err := alice.ToggleLiked(ctx, track("a")); err != nil {
		t.Fatal(err)
	}
	if bob.IsLiked("a") {
		t.Error("bob sees alice's like")
	}
	if Open(ctx, backend, "bob", nil).IsLiked("a") {
		t.Error("bob's persisted collection has alice's like")
	}
	if !Open(ctx, backend, "alice", nil).IsLiked("a") {
		t.Error("alice's like was not persisted under her namespace")
	}
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	s := Open(ctx, backend, "user/1", nil)
	if _, err := s.ToggleLiked(ctx, track("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendHistory(ctx, entry(t, music.Night, "a")); err != nil {
		t.Fatal(err)
	}

	backend2, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	reopened := Open(ctx, backend2, "user/1", nil)
	if diff := deep.Equal(reopened.Liked(), s.Liked()); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(reopened.History(), s.History()); diff != nil {
		t.Error(diff)
	}

	// Keys with path separators stay inside the data directory.
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("data dir has %d files, want 2", len(files))
	}
}

func TestFileBackend_MissingKey(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, found, err := backend.Get(context.Background(), "absent")
	if err != nil || found {
		t.Errorf("Get(absent) = found %v, err %v", found, err)
	}
}
