package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	cfg      *Config
	store    *Store
	sessions *Sessions
	rooms    *RoomManager
	router   *httprouter.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	return newTestEnvWithIdle(t, 0)
}

// newTestEnvWithIdle builds a test server whose rooms are reaped after
// idleTimeout. Zero disables the reaper.
func newTestEnvWithIdle(t *testing.T, idleTimeout time.Duration) *testEnv {
	t.Helper()

	cfg := newTestConfig()
	store := openTempStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rooms := newRoomManager(ctx, idleTimeout)
	t.Cleanup(rooms.closeAll)

	sessions := newSessions(cfg, store, rooms)

	tmpl, err := parseTemplates()
	require.NoError(t, err)

	errs := make(chan error, 64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-errs:
			}
		}
	}()

	return &testEnv{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		rooms:    rooms,
		router:   newRouter(cfg, sessions, rooms, tmpl, errs),
	}
}

func (e *testEnv) do(r *http.Request, playerID string) *httptest.ResponseRecorder {
	if playerID != "" {
		r.AddCookie(&http.Cookie{Name: playerCookieName, Value: playerID})
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func postForm(path string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCreateFibonacciSessionRedirectsToGame(t *testing.T) {
	env := newTestEnv(t)
	alice := uuid.NewString()

	rec := env.do(postForm("/", url.Values{
		"name":      {"Sprint 1"},
		"createdBy": {"Alice"},
		"gameType":  {"Fibonacci"},
	}), alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/game/"), location)
	id := strings.TrimPrefix(location, "/game/")

	name := responseCookie(rec, recentNameCookie)
	require.NotNil(t, name)
	require.Equal(t, "Alice", name.Value)

	g, err := env.store.GetGame(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Sprint 1", g.Name)
	require.Equal(t, "Alice", g.CreatedBy)
	require.Equal(t, alice, g.CreatedByID)
	require.Equal(t, Fibonacci, g.ScaleType)
	require.Equal(t, cardsFor(Fibonacci), g.Cards)
}

func TestCreateCustomSessionWithOneValueIsRejected(t *testing.T) {
	env := newTestEnv(t)

	custom := make([]string, customSlots)
	custom[0] = "1"

	rec := env.do(postForm("/", url.Values{
		"name":      {"Sprint 1"},
		"createdBy": {"Alice"},
		"gameType":  {"Custom"},
		"custom":    custom,
	}), uuid.NewString())
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "Please enter at least two values.")
	require.Nil(t, responseCookie(rec, recentNameCookie))

	var games int
	require.NoError(t, env.store.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&games))
	require.Zero(t, games)
}

func TestCreateCustomSessionKeepsEnteredValues(t *testing.T) {
	env := newTestEnv(t)

	custom := make([]string, customSlots)
	custom[2] = " S "
	custom[9] = "XL"

	rec := env.do(postForm("/", url.Values{
		"name":      {"Sizing"},
		"createdBy": {"Alice"},
		"gameType":  {"Custom"},
		"custom":    custom,
	}), uuid.NewString())
	require.Equal(t, http.StatusSeeOther, rec.Code)

	id := strings.TrimPrefix(rec.Header().Get("Location"), "/game/")
	g, err := env.store.GetGame(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, customCards(custom), g.Cards)
}

func TestHomePageUsesRecentPlayerName(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: recentNameCookie, Value: url.QueryEscape("Alice Smith")})

	rec := env.do(r, uuid.NewString())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `value="Alice Smith"`)
	require.Contains(t, rec.Body.String(), "No recent sessions found")
}

func TestHomePageIssuesPlayerCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)

	c := responseCookie(rec, playerCookieName)
	require.NotNil(t, c)
	_, err := uuid.Parse(c.Value)
	require.NoError(t, err)
}

func TestHomePageSkipsUnnamedRecentSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := uuid.NewString()

	_, err := env.store.AddGame(ctx, testGame("Sprint 1", "Alice", alice))
	require.NoError(t, err)
	unnamed, err := env.store.AddGame(ctx, testGame("", "Alice", alice))
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil), alice)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, "Sprint 1")
	require.NotContains(t, body, "/game/"+unnamed)
	require.NotContains(t, body, "No recent sessions found")
}

func TestDeleteButtonOnlyForModerators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.NewString(), uuid.NewString()

	locked, err := env.store.AddGame(ctx, testGame("Locked", "Alice", alice))
	require.NoError(t, err)

	open := testGame("Open", "Alice", alice)
	open.AllowMembersToManage = true
	opened, err := env.store.AddGame(ctx, open)
	require.NoError(t, err)

	require.NoError(t, env.store.AddPlayer(ctx, locked, bob, "Bob"))
	require.NoError(t, env.store.AddPlayer(ctx, opened, bob, "Bob"))

	body := env.do(httptest.NewRequest(http.MethodGet, "/", nil), bob).Body.String()
	require.NotContains(t, body, "/game/"+locked+"/delete")
	require.Contains(t, body, "/game/"+opened+"/delete")

	body = env.do(httptest.NewRequest(http.MethodGet, "/", nil), alice).Body.String()
	require.Contains(t, body, "/game/"+locked+"/delete")
	require.Contains(t, body, "/game/"+opened+"/delete")
}

func TestDeleteSessionChecksModerator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.NewString(), uuid.NewString()

	id, err := env.store.AddGame(ctx, testGame("Sprint 1", "Alice", alice))
	require.NoError(t, err)

	rec := env.do(postForm("/game/"+id+"/delete", nil), bob)
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, err = env.store.GetGame(ctx, id)
	require.NoError(t, err)

	rec = env.do(postForm("/game/"+id+"/delete", nil), alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	_, err = env.store.GetGame(ctx, id)
	require.ErrorIs(t, err, ErrGameNotFound)

	rec = env.do(postForm("/game/"+id+"/delete", nil), alice)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinRedirectsToExistingGame(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.store.AddGame(context.Background(), testGame("Sprint 1", "Alice", "alice-id"))
	require.NoError(t, err)

	rec := env.do(postForm("/join", url.Values{"gameId": {"https://poker.example.com/game/" + id}}), "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/game/"+id, rec.Header().Get("Location"))

	rec = env.do(postForm("/join", url.Values{"gameId": {"missing"}}), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "Session not found")
}

func TestGamePage(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.store.AddGame(context.Background(), testGame("Sprint 1", "Alice", "alice-id"))
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/game/"+id, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Sprint 1")
	require.Contains(t, rec.Body.String(), `data-card="89"`)
	require.NotContains(t, rec.Body.String(), "data-default-name")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/game/missing", nil), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToolbarOnEveryPage(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/", "/join", "/about-planning-poker", "/guide", "/examples"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		body := rec.Body.String()
		require.Contains(t, body, "Planning Poker", path)
		require.Contains(t, body, `data-testid="toolbar.menu.newSession"`, path)
		require.Contains(t, body, `data-testid="toolbar.menu.joinSession"`, path)
		require.Contains(t, body, env.cfg.githubURL, path)
	}
}

func TestAPICreateListRemove(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()

	r := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(
		`{"name":"Sprint 1","createdBy":"Alice","gameType":"TShirt"}`))
	rec := env.do(r, alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created createdResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "/game/"+created.ID, rec.Header().Get("Location"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/recent", nil), alice)
	require.Equal(t, http.StatusOK, rec.Code)

	var recent []recentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&recent))
	require.Len(t, recent, 1)
	require.Equal(t, created.ID, recent[0].ID)
	require.True(t, recent[0].IsModerator)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/games/"+created.ID, nil), bob)
	require.Equal(t, http.StatusOK, rec.Code)

	var game gameResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&game))
	require.Equal(t, TShirt, game.ScaleType)
	require.False(t, game.IsModerator)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/games/"+created.ID, nil), bob)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/games/"+created.ID, nil), alice)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/recent", nil), alice)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestAPICreateValidation(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(
		`{"name":"Sprint 1","createdBy":"Alice","gameType":"Custom","customValues":["1","",""]}`))
	rec := env.do(r, uuid.NewString())
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body apiError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "customValues", body.Field)

	r = httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(`{"bogus":true}`))
	rec = env.do(r, uuid.NewString())
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaticRoutes(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]string{
		"/assets/app.js":             "text/javascript; charset=utf-8",
		"/assets/app.css":            "text/css; charset=utf-8",
		"/favicons/favicon.svg":      "image/svg+xml",
		"/favicons/site.webmanifest": "application/manifest+json",
		"/healthz":                   "text/plain; charset=utf-8",
		"/robots.txt":                "text/plain; charset=utf-8",
		"/version":                   "text/plain; charset=utf-8",
	}

	for path, contentType := range cases {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, contentType, rec.Header().Get("Content-Type"), path)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/assets/missing.js", nil), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQRCode(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.store.AddGame(context.Background(), testGame("Sprint 1", "Alice", "alice-id"))
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/game/"+id+"/qr", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/game/missing/qr", nil), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGameURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://poker.example.com/game/abc/qr", nil)
	require.Equal(t, "http://poker.example.com/game/abc", gameURL(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	require.Equal(t, "https://poker.example.com/game/abc", gameURL(r))
}

func TestProfileRoutesOnlyWhenEnabled(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/pprof/heap", nil), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	env.cfg.profile = true
	tmpl, err := parseTemplates()
	require.NoError(t, err)

	errs := make(chan error, 8)
	router := newRouter(env.cfg, env.sessions, env.rooms, tmpl, errs)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pprof/heap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutesHonourPrefix(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.prefix = "/poker"

	tmpl, err := parseTemplates()
	require.NoError(t, err)

	errs := make(chan error, 8)
	router := newRouter(env.cfg, env.sessions, env.rooms, tmpl, errs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/poker/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/poker/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `href="/poker/join"`)
}

func TestRoomScriptOffersRemoveToModerators(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/assets/app.js", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, "moderator = msg.isModerator")
	require.Contains(t, body, `send({ type: "kick", targetId: p.id })`)
}

func TestAPICreateRejectsOverlongCreator(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(NewGame{
		Name:      "Sprint 1",
		CreatedBy: strings.Repeat("a", 5000),
		ScaleType: Fibonacci,
	})
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(string(body))), uuid.NewString())
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Nil(t, responseCookie(rec, recentNameCookie))

	var apiErr apiError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	require.Equal(t, "createdBy", apiErr.Field)

	var games int
	require.NoError(t, env.store.db.QueryRow(`SELECT COUNT(*) FROM games`).Scan(&games))
	require.Zero(t, games)
}
