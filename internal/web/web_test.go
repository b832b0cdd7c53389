package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/moodtunes/internal/auth"
	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/insights"
	"github.com/justestif/moodtunes/internal/library"
	"github.com/justestif/moodtunes/internal/music"
	"github.com/justestif/moodtunes/internal/playback"
	"github.com/justestif/moodtunes/internal/session"
	"github.com/justestif/moodtunes/internal/store"
)

var (
	trackA = music.Track{ID: "a", Title: "Levitating", Artist: "Dua Lipa", Preview: "https://p.scdn.co/a.mp3"}
	trackB = music.Track{ID: "b", Title: "Blinding Lights", Artist: "The Weeknd"}
	trackC = music.Track{ID: "c", Title: "Good as Hell", Artist: "Lizzo", Preview: "https://p.scdn.co/c.mp3"}
)

type fakeAuth struct {
	profileErr error
	apiURL     string // Base URL for user API calls
}

func (f *fakeAuth) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (f *fakeAuth) Exchange(_ context.Context, state string, r *http.Request) (*oauth2.Token, error) {
	q := r.URL.Query()
	if state == "" || q.Get("state") != state {
		return nil, &auth.AuthExchangeError{Reason: "state", Err: auth.ErrStateMismatch}
	}
	if e := q.Get("error"); e != "" {
		return nil, &auth.AuthExchangeError{Reason: "denied", Err: auth.ErrAccessDenied}
	}
	return &oauth2.Token{AccessToken: "user-token", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) CurrentUser(context.Context, *oauth2.Token) (*auth.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &auth.Profile{ID: "user-1", DisplayName: "Ada"}, nil
}

// Client hands out a client whose token source yields a new access token,
// as oauth2 does after a refresh.
func (f *fakeAuth) Client(ctx context.Context, token *oauth2.Token) *spotify.Client {
	refreshed := &oauth2.Token{AccessToken: "refreshed-" + token.AccessToken, Expiry: time.Now().Add(time.Hour)}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(refreshed))
	return spotify.New(httpClient, spotify.WithBaseURL(f.apiURL+"/"))
}

type fakeCatalog struct {
	mu           sync.Mutex
	recommend    []music.Track
	recommendErr error
}

func (f *fakeCatalog) Recommend(_ context.Context, mood music.Mood, _ int) ([]music.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recommendErr != nil {
		return nil, &catalog.CatalogError{Op: "recommend", Mood: mood, Err: f.recommendErr}
	}
	return music.WithMood(f.recommend, mood), nil
}

func (f *fakeCatalog) Search(_ context.Context, term string, _ int) ([]music.Track, error) {
	if term == "nothing" {
		return []music.Track{}, nil
	}
	return []music.Track{trackC}, nil
}

func (f *fakeCatalog) TopCharts(context.Context) ([]music.Track, error) {
	return []music.Track{trackC, trackA}, nil
}

type testEnv struct {
	server   *Server
	sessions *SessionStore
	registry *session.Registry
	catalog  *fakeCatalog
	auth     *fakeAuth
}

func newTestEnv(t *testing.T, opts ...func(*Dependencies)) *testEnv {
	t.Helper()
	cat := &fakeCatalog{recommend: []music.Track{trackA, trackB, trackC}}
	registry := session.NewRegistry(cat, store.NewMemoryBackend(), nil)
	sessions := NewSessionStore(time.Hour)
	fa := &fakeAuth{}

	deps := Dependencies{
		Auth:     fa,
		Sessions: sessions,
		Registry: registry,
		Importer: library.New(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, deps)
	return &testEnv{server: srv, sessions: sessions, registry: registry, catalog: cat, auth: fa}
}

// signIn creates a session for user-1 and returns its cookie.
func (e *testEnv) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	sess, err := e.sessions.Create(context.Background(), &oauth2.Token{AccessToken: "tok"},
		&auth.Profile{ID: "user-1", DisplayName: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: sess.ID}
}

func (e *testEnv) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/auth/login", "")

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
	state := findCookie(rec, stateCookieName)
	if state == nil || len(state.Value) != 32 {
		t.Fatalf("state cookie = %+v", state)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Query().Get("state") != state.Value {
		t.Errorf("redirect state = %q, cookie = %q", loc.Query().Get("state"), state.Value)
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name        string
		cookieState string
		query       string
		profileErr  error
		wantSession bool
	}{
		{"success", "s1", "code=abc&state=s1", nil, true},
		{"missing state cookie", "", "code=abc&state=s1", nil, false},
		{"state mismatch", "s1", "code=abc&state=forged", nil, false},
		{"access denied", "s1", "error=access_denied&state=s1", nil, false},
		{"profile failure", "s1", "code=abc&state=s1", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.auth.profileErr = tt.profileErr

			var cookies []*http.Cookie
			if tt.cookieState != "" {
				cookies = append(cookies, &http.Cookie{Name: stateCookieName, Value: tt.cookieState})
			}
			rec := env.do(t, http.MethodGet, "/callback?"+tt.query, "", cookies...)

			if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/" {
				t.Errorf("response = %d %q, want redirect to /", rec.Code, rec.Header().Get("Location"))
			}

			state := findCookie(rec, stateCookieName)
			if state == nil || state.MaxAge >= 0 {
				t.Errorf("state cookie not cleared: %+v", state)
			}

			sc := findCookie(rec, sessionCookieName)
			if tt.wantSession {
				if sc == nil || env.sessions.Get(context.Background(), sc.Value) == nil {
					t.Fatal("no session created")
				}
				me := env.do(t, http.MethodGet, "/api/me", "", sc)
				if diff := deep.Equal(decode[meResponse](t, me), meResponse{ID: "user-1", Name: "Ada"}); diff != nil {
					t.Error(diff)
				}
				return
			}
			if sc != nil {
				t.Errorf("session cookie set on failure: %+v", sc)
			}
		})
	}
}

func TestAPI_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/feed", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no cookie: status = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/feed", "", &http.Cookie{Name: sessionCookieName, Value: "unknown"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown session: status = %d, want 401", rec.Code)
	}
	if env.registry.Len() != 0 {
		t.Errorf("registry has %d sessions, want 0", env.registry.Len())
	}
}

func TestListMoods(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/moods", "", env.signIn(t))

	moods := decode[[]moodResponse](t, rec)
	if len(moods) != len(music.AllMoods) {
		t.Fatalf("got %d moods, want %d", len(moods), len(music.AllMoods))
	}
	for i, m := range moods {
		if m.Mood != music.AllMoods[i] || m.Label == "" {
			t.Errorf("moods[%d] = %+v", i, m)
		}
	}
}

func TestSelectMoodAndPlay(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	rec := env.do(t, http.MethodPost, "/api/moods/happy", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("select mood: status = %d: %s", rec.Code, rec.Body)
	}
	feed := decode[feedResponse](t, rec)
	if feed.Mood != music.Happy || len(feed.Tracks) != 3 || feed.Tracks[0].Mood != music.Happy {
		t.Fatalf("feed = %+v", feed)
	}

	history := decode[[]music.HistoryEntry](t, env.do(t, http.MethodGet, "/api/history", "", cookie))
	if len(history) != 1 || history[0].Mood != music.Happy {
		t.Fatalf("history = %+v", history)
	}

	steps := []struct {
		method, path, body string
		wantOutcome        playback.Outcome
		wantTrack          string
		wantState          playback.State
	}{
		{http.MethodPost, "/api/player/play", `{"trackId":"a"}`, playback.OutcomePlaying, "a", playback.Playing},
		{http.MethodPost, "/api/player/next", "", playback.OutcomePlaying, "c", playback.Playing},
		{http.MethodPost, "/api/player/next", "", playback.OutcomeNoPlayableTrack, "c", playback.Playing},
		{http.MethodPost, "/api/player/toggle", "", playback.OutcomePaused, "c", playback.Paused},
		{http.MethodPost, "/api/player/previous", "", playback.OutcomePlaying, "a", playback.Playing},
		{http.MethodPost, "/api/player/play", `{"trackId":"b"}`, playback.OutcomeUnplayable, "b", playback.Paused},
	}
	for _, s := range steps {
		rec := env.do(t, s.method, s.path, s.body, cookie)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s: status = %d: %s", s.method, s.path, rec.Code, rec.Body)
		}
		p := decode[playerResponse](t, rec)
		if p.Outcome != s.wantOutcome || p.Track == nil || p.Track.ID != s.wantTrack || p.State != s.wantState {
			t.Errorf("%s %s = %+v, want outcome %s track %s state %s",
				s.method, s.path, p, s.wantOutcome, s.wantTrack, s.wantState)
		}
	}

	rec = env.do(t, http.MethodPost, "/api/player/play", `{"trackId":"zzz"}`, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("play unknown track: status = %d, want 404", rec.Code)
	}
}

func TestSelectMood_Errors(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	rec := env.do(t, http.MethodPost, "/api/moods/angry", "", cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mood: status = %d, want 400", rec.Code)
	}

	env.catalog.recommendErr = errors.New("upstream down")
	rec = env.do(t, http.MethodPost, "/api/moods/sad", "", cookie)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("catalog failure: status = %d, want 502", rec.Code)
	}

	feed := decode[feedResponse](t, env.do(t, http.MethodGet, "/api/feed", "", cookie))
	if feed.Error == "" || len(feed.Tracks) != 0 {
		t.Errorf("feed after failure = %+v", feed)
	}

	history := decode[[]music.HistoryEntry](t, env.do(t, http.MethodGet, "/api/history", "", cookie))
	if len(history) != 0 {
		t.Errorf("failed fetch wrote history: %+v", history)
	}
}

func TestSearchAndCharts(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	res := decode[session.SearchResults](t, env.do(t, http.MethodGet, "/api/search?q=lizzo", "", cookie))
	if res.Empty || len(res.Tracks) != 1 || res.Tracks[0].ID != "c" {
		t.Errorf("search = %+v", res)
	}

	res = decode[session.SearchResults](t, env.do(t, http.MethodGet, "/api/search?q=nothing", "", cookie))
	if !res.Empty || len(res.Tracks) != 0 {
		t.Errorf("empty search = %+v", res)
	}

	charts := decode[feedResponse](t, env.do(t, http.MethodGet, "/api/charts", "", cookie))
	if charts.Mood != "" || len(charts.Tracks) != 2 {
		t.Errorf("charts = %+v", charts)
	}
}

func TestLikedSongs(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	body, _ := json.Marshal(trackA)
	got := decode[likedResponse](t, env.do(t, http.MethodPost, "/api/liked", string(body), cookie))
	if !got.Liked {
		t.Error("first toggle should like the track")
	}

	body, _ = json.Marshal(trackB)
	env.do(t, http.MethodPost, "/api/liked", string(body), cookie)

	liked := decode[[]music.Track](t, env.do(t, http.MethodGet, "/api/liked", "", cookie))
	if diff := deep.Equal(liked, []music.Track{trackA, trackB}); diff != nil {
		t.Error(diff)
	}

	found := decode[[]music.Track](t, env.do(t, http.MethodGet, "/api/liked/search?q=weeknd", "", cookie))
	if len(found) != 1 || found[0].ID != "b" {
		t.Errorf("liked search = %+v", found)
	}

	rec := env.do(t, http.MethodPost, "/api/liked", `{"title":"no id"}`, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("toggle without id: status = %d, want 400", rec.Code)
	}

	// Playing from the liked view navigates the liked list.
	rec = env.do(t, http.MethodPost, "/api/player/play", `{"trackId":"a","view":{"kind":"liked"}}`, cookie)
	if p := decode[playerResponse](t, rec); p.Outcome != playback.OutcomePlaying {
		t.Errorf("play from liked = %+v", p)
	}
	p := decode[playerResponse](t, env.do(t, http.MethodPost, "/api/player/next", "", cookie))
	if p.Outcome != playback.OutcomeNoPlayableTrack {
		t.Errorf("next in liked = %+v, want no playable track", p)
	}
}

func TestImportLibrary(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/tracks" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"added_at":"2024-01-01T00:00:00Z","track":{"type":"track","id":"saved-1",`+
			`"name":"Saved","artists":[{"name":"Someone"}],"album":{"name":"A","images":[]}}}],"total":1,"next":null}`)
	}))
	defer api.Close()

	env := newTestEnv(t)
	env.auth.apiURL = api.URL
	cookie := env.signIn(t)

	rec := env.do(t, http.MethodPost, "/api/liked/import", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: status = %d: %s", rec.Code, rec.Body)
	}
	if res := decode[library.Result](t, rec); res.Fetched != 1 || res.Added != 1 {
		t.Errorf("import result = %+v", res)
	}

	liked := decode[[]music.Track](t, env.do(t, http.MethodGet, "/api/liked", "", cookie))
	if len(liked) != 1 || liked[0].ID != "saved-1" || liked[0].Artist != "Someone" {
		t.Errorf("liked after import = %+v", liked)
	}

	sess := env.sessions.Get(context.Background(), cookie.Value)
	if sess == nil || sess.Token.AccessToken != "refreshed-tok" {
		t.Errorf("refreshed token not saved to the session: %+v", sess)
	}

	rec = env.do(t, http.MethodPost, "/api/liked/import", "", cookie)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second import: status = %d, want 429", rec.Code)
	}
}

func TestHistoryRoutes(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	env.do(t, http.MethodPost, "/api/moods/happy", "", cookie)
	env.do(t, http.MethodPost, "/api/moods/calm", "", cookie)

	calm := decode[[]music.HistoryEntry](t, env.do(t, http.MethodGet, "/api/history?mood=calm", "", cookie))
	if len(calm) != 1 || calm[0].Mood != music.Calm {
		t.Fatalf("calm history = %+v", calm)
	}

	rec := env.do(t, http.MethodGet, "/api/history?mood=angry", "", cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mood filter: status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/history/"+calm[0].ID, "", cookie)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/history/"+calm[0].ID, "", cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete twice: status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/history", "", cookie)
	if rec.Code != http.StatusNoContent {
		t.Errorf("clear: status = %d, want 204", rec.Code)
	}
	all := decode[[]music.HistoryEntry](t, env.do(t, http.MethodGet, "/api/history", "", cookie))
	if len(all) != 0 {
		t.Errorf("history after clear = %+v", all)
	}
}

func TestPlayerEvents(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	env.do(t, http.MethodPost, "/api/moods/happy", "", cookie)
	env.do(t, http.MethodPost, "/api/player/play", `{"trackId":"a"}`, cookie)

	env.do(t, http.MethodPost, "/api/player/events", `{"type":"loaded","seconds":30}`, cookie)
	p := decode[playerResponse](t, env.do(t, http.MethodPost, "/api/player/events", `{"type":"time","seconds":12.5}`, cookie))
	if p.Duration != 30 || p.Position != 12.5 {
		t.Errorf("after time events = %+v", p)
	}

	p = decode[playerResponse](t, env.do(t, http.MethodPost, "/api/player/events", `{"type":"ended"}`, cookie))
	if p.Outcome != playback.OutcomePlaying || p.Track.ID != "c" {
		t.Errorf("ended = %+v, want playing c", p)
	}

	p = decode[playerResponse](t, env.do(t, http.MethodPost, "/api/player/events", `{"type":"ended"}`, cookie))
	if p.Outcome != playback.OutcomeEnded || p.State != playback.Paused {
		t.Errorf("ended at last track = %+v", p)
	}

	p = decode[playerResponse](t, env.do(t, http.MethodPost, "/api/player/events", `{"type":"error"}`, cookie))
	if p.State != playback.Paused {
		t.Errorf("error event = %+v", p)
	}

	rec := env.do(t, http.MethodPost, "/api/player/events", `{"type":"seek"}`, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown event: status = %d, want 400", rec.Code)
	}
}

func TestSetView(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	rec := env.do(t, http.MethodPut, "/api/view", `{"kind":"history","historyId":"missing"}`, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing history view: status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/view", `{"kind":"bogus"}`, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown view: status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/view", `{"kind":"liked"}`, cookie)
	if rec.Code != http.StatusOK {
		t.Errorf("liked view: status = %d: %s", rec.Code, rec.Body)
	}
}

func TestSuggestMoods_NoSuggester(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/moods/suggested", "", env.signIn(t))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("suggested = %d %s", rec.Code, rec.Body)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	env.do(t, http.MethodGet, "/api/feed", "", cookie)
	if env.registry.Len() != 1 {
		t.Fatalf("registry has %d sessions, want 1", env.registry.Len())
	}

	rec := env.do(t, http.MethodPost, "/auth/logout", "", cookie)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rec.Code)
	}
	if c := findCookie(rec, sessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie not cleared: %+v", c)
	}
	if env.registry.Len() != 0 {
		t.Error("logout did not drop the user session")
	}

	rec = env.do(t, http.MethodGet, "/api/feed", "", cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", rec.Code)
	}
}

func TestLogout_OtherBrowsersKeepTheirState(t *testing.T) {
	env := newTestEnv(t)
	laptop := env.signIn(t)
	phone := env.signIn(t)

	env.do(t, http.MethodPost, "/api/moods/happy", "", laptop)
	env.do(t, http.MethodPost, "/api/player/play", `{"trackId":"a"}`, laptop)

	env.do(t, http.MethodPost, "/auth/logout", "", phone)
	if env.registry.Len() != 1 {
		t.Fatalf("registry has %d sessions, want 1", env.registry.Len())
	}

	feed := decode[feedResponse](t, env.do(t, http.MethodGet, "/api/feed", "", laptop))
	if feed.Mood != music.Happy || len(feed.Tracks) != 3 {
		t.Errorf("feed after other logout = %+v", feed)
	}
	p := decode[playerResponse](t, env.do(t, http.MethodGet, "/api/player", "", laptop))
	if p.State != playback.Playing || p.Track == nil || p.Track.ID != "a" {
		t.Errorf("player after other logout = %+v", p)
	}

	env.do(t, http.MethodPost, "/auth/logout", "", laptop)
	if env.registry.Len() != 0 {
		t.Error("last logout did not drop the user session")
	}
}

func TestSessionStore_UpdateTokenAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(time.Hour)
	user := &auth.Profile{ID: "u", DisplayName: "U"}

	first, err := s.Create(ctx, &oauth2.Token{AccessToken: "old"}, user)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, &oauth2.Token{AccessToken: "other"}, user); err != nil {
		t.Fatal(err)
	}
	if n := s.CountForUser(ctx, "u"); n != 2 {
		t.Errorf("CountForUser() = %d, want 2", n)
	}
	if n := s.CountForUser(ctx, "nobody"); n != 0 {
		t.Errorf("CountForUser(nobody) = %d, want 0", n)
	}

	s.UpdateToken(ctx, first.ID, &oauth2.Token{AccessToken: "new"})
	if got := s.Get(ctx, first.ID).Token.AccessToken; got != "new" {
		t.Errorf("token = %q, want new", got)
	}
	if first.Token.AccessToken != "old" {
		t.Error("UpdateToken mutated a session already handed out")
	}

	s.UpdateToken(ctx, "missing", &oauth2.Token{AccessToken: "x"})
	if n := s.CountForUser(ctx, "u"); n != 2 {
		t.Errorf("CountForUser() after update = %d, want 2", n)
	}
}

// fakeFeatures serves audio features for the suggested-moods route.
type fakeFeatures map[string]music.Features

func (f fakeFeatures) AudioFeatures(_ context.Context, ids []string) (map[string]music.Features, error) {
	out := make(map[string]music.Features)
	for _, id := range ids {
		if feat, ok := f[id]; ok {
			out[id] = feat
		}
	}
	return out, nil
}

func TestSuggestMoods(t *testing.T) {
	profiles := music.DefaultProfiles()
	happy, calm := profiles[music.Happy].Targets, profiles[music.Calm].Targets
	features := fakeFeatures{"a": happy, "b": calm, "c": happy, "d": calm, "e": happy}

	env := newTestEnv(t, func(d *Dependencies) {
		d.Suggester = insights.NewSuggester(features, profiles,
			insights.Config{NumClusters: 2, MinClusterSize: 2}, nil)
	})
	cookie := env.signIn(t)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		body, _ := json.Marshal(music.Track{ID: id, Title: id})
		env.do(t, http.MethodPost, "/api/liked", string(body), cookie)
	}

	rec := env.do(t, http.MethodGet, "/api/moods/suggested", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	got := decode[[]insights.Suggestion](t, rec)
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2: %+v", len(got), got)
	}

	members := map[music.Mood][]string{}
	for _, sg := range got {
		for _, tr := range sg.Tracks {
			members[sg.Mood] = append(members[sg.Mood], tr.ID)
		}
	}
	want := map[music.Mood][]string{music.Happy: {"a", "c", "e"}, music.Calm: {"b", "d"}}
	if diff := deep.Equal(members, want); diff != nil {
		t.Error(diff)
	}
	if got[0].Mood != music.Happy {
		t.Errorf("first suggestion = %s, want the larger happy group", got[0].Mood)
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	s := NewSessionStore(time.Hour)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	sess, err := s.Create(context.Background(), &oauth2.Token{}, &auth.Profile{ID: "u", DisplayName: "U"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Get(context.Background(), sess.ID) == nil {
		t.Fatal("fresh session not found")
	}

	now = now.Add(time.Hour)
	if s.Get(context.Background(), sess.ID) != nil {
		t.Error("expired session still returned")
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{music.ErrUnknownMood, http.StatusBadRequest},
		{session.ErrUnknownView, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", store.ErrNotFound), http.StatusNotFound},
		{playback.ErrTrackNotInList, http.StatusNotFound},
		{session.ErrSuperseded, http.StatusConflict},
		{library.ErrImportTooRecent, http.StatusTooManyRequests},
		{&catalog.CatalogError{Op: "search", Err: errors.New("x")}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
