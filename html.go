/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/pokerbox/names"
	"github.com/julienschmidt/httprouter"
)

//go:embed assets/*
var assets embed.FS

//go:embed templates/*.html
var templateFS embed.FS

type menuItem struct {
	Label  string
	Href   string
	TestID string
}

type recentRow struct {
	RecentGame
	CanManage bool
}

// createForm is the state of the create-session form as rendered.
type createForm struct {
	Name           string
	CreatedBy      string
	ScaleType      ScaleType
	AllowMembers   bool
	CustomValues   []string
	DefaultName    bool
	DefaultCreator bool
	Field          string
	Error          string
}

func (f *createForm) ScaleTypes() []ScaleType {
	return scaleTypes
}

func (f *createForm) submission() NewGame {
	return NewGame{
		Name:                 f.Name,
		CreatedBy:            f.CreatedBy,
		ScaleType:            f.ScaleType,
		AllowMembersToManage: f.AllowMembers,
		CustomValues:         f.CustomValues,
	}
}

// newCreateForm pre-fills a fresh form. The creator defaults to the name last
// used from this browser.
func newCreateForm(r *http.Request) *createForm {
	f := &createForm{
		Name:         names.Game(),
		ScaleType:    Fibonacci,
		CustomValues: make([]string, customSlots),
		DefaultName:  true,
	}

	if name := recentPlayerName(r); name != "" {
		f.CreatedBy = name
	} else {
		f.CreatedBy = names.Player()
		f.DefaultCreator = true
	}

	return f
}

func parseCreateForm(r *http.Request) (*createForm, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	f := &createForm{
		Name:         r.PostForm.Get("name"),
		CreatedBy:    r.PostForm.Get("createdBy"),
		ScaleType:    ScaleType(r.PostForm.Get("gameType")),
		AllowMembers: r.PostForm.Get("allowMembers") == "true",
		CustomValues: make([]string, customSlots),
	}

	if f.ScaleType == "" {
		f.ScaleType = Fibonacci
	}

	custom := r.PostForm["custom"]
	if len(custom) > customSlots {
		custom = custom[:customSlots]
	}
	copy(f.CustomValues, custom)

	return f, nil
}

type pageData struct {
	Prefix     string
	Version    string
	Title      string
	Menu       []menuItem
	Form       *createForm
	Recent     []recentRow
	JoinID     string
	Error      string
	Game       *Game
	PlayerName string
	Paragraphs []string
}

func newPageData(cfg *Config, title string) pageData {
	return pageData{
		Prefix:  cfg.prefix,
		Version: releaseVersion,
		Title:   title,
		Menu:    menuItems(cfg),
	}
}

func menuItems(cfg *Config) []menuItem {
	return []menuItem{
		{Label: "About", Href: cfg.prefix + "/about-planning-poker"},
		{Label: "Guide", Href: cfg.prefix + "/guide"},
		{Label: "Examples", Href: cfg.prefix + "/examples"},
		{Label: "New Session", Href: cfg.prefix + "/", TestID: "toolbar.menu.newSession"},
		{Label: "Join Session", Href: cfg.prefix + "/join", TestID: "toolbar.menu.joinSession"},
		{Label: "GitHub", Href: cfg.githubURL},
	}
}

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// render buffers the page so a template failure never leaves half a page.
func render(cfg *Config, tmpl *template.Template, w http.ResponseWriter, status int, name string, data pageData, errs chan<- error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		errs <- err
		serveErrorPage(cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.")

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if _, err := buf.WriteTo(w); err != nil {
		errs <- err
	}
}

// recentRows loads the viewer's recent sessions for display. ok is false when
// the request went away before the list was ready.
func recentRows(r *http.Request, sessions *Sessions, playerID string) ([]recentRow, bool, error) {
	games, err := sessions.Recent(r.Context(), playerID)
	if r.Context().Err() != nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}

	games = visibleRecent(games)

	rows := make([]recentRow, 0, len(games))
	for _, g := range games {
		rows = append(rows, recentRow{RecentGame: g, CanManage: g.moderatedBy(playerID)})
	}
	return rows, true, nil
}

func renderHome(cfg *Config, sessions *Sessions, tmpl *template.Template, w http.ResponseWriter, r *http.Request, playerID string, status int, form *createForm, errs chan<- error) {
	rows, ok, err := recentRows(r, sessions, playerID)
	if !ok {
		return
	}
	if err != nil {
		errs <- err
	}

	data := newPageData(cfg, "")
	data.Form = form
	data.Recent = rows

	render(cfg, tmpl, w, status, "home.html", data, errs)
}

func serveHomePage(cfg *Config, sessions *Sessions, tmpl *template.Template, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(cfg, w, r)

		renderHome(cfg, sessions, tmpl, w, r, playerID, http.StatusOK, newCreateForm(r), errs)
	}
}

func serveCreateGame(cfg *Config, sessions *Sessions, tmpl *template.Template, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

		form, err := parseCreateForm(r)
		if err != nil {
			serveErrorPage(cfg, w, http.StatusBadRequest, "Unable to read the submitted form.")

			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)

		id, err := sessions.Create(r.Context(), playerID, form.submission())
		if verr, ok := isValidation(err); ok {
			form.Field = verr.Field
			form.Error = verr.Message
			renderHome(cfg, sessions, tmpl, w, r, playerID, http.StatusUnprocessableEntity, form, errs)

			return
		}
		if err != nil {
			errs <- err
			serveErrorPage(cfg, w, http.StatusInternalServerError, "Unable to create the session. Please try again.")

			return
		}

		setRecentPlayerName(cfg, w, strings.TrimSpace(form.CreatedBy))

		http.Redirect(w, r, cfg.prefix+"/game/"+id, http.StatusSeeOther)
	}
}

func serveJoinPage(cfg *Config, tmpl *template.Template, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		render(cfg, tmpl, w, http.StatusOK, "join.html", newPageData(cfg, "Join Session"), errs)
	}
}

func serveJoinGame(cfg *Config, sessions *Sessions, tmpl *template.Template, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

		id := strings.TrimSpace(r.PostFormValue("gameId"))
		// Accept a pasted session link as well as a bare ID.
		if i := strings.LastIndex(id, "/game/"); i != -1 {
			id = strings.Trim(id[i+len("/game/"):], "/")
		}

		data := newPageData(cfg, "Join Session")
		data.JoinID = id

		_, err := sessions.Get(r.Context(), id)
		switch {
		case id != "" && err == nil:
			http.Redirect(w, r, cfg.prefix+"/game/"+id, http.StatusSeeOther)
		case id == "" || errors.Is(err, ErrGameNotFound):
			data.Error = "Session not found. Please check the ID and try again."
			render(cfg, tmpl, w, http.StatusNotFound, "join.html", data, errs)
		default:
			errs <- err
			serveErrorPage(cfg, w, http.StatusInternalServerError, "Unable to look up the session. Please try again.")
		}
	}
}

func serveGamePage(cfg *Config, sessions *Sessions, tmpl *template.Template, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		g, err := sessions.Get(r.Context(), p.ByName("gameid"))
		if errors.Is(err, ErrGameNotFound) {
			serveErrorPage(cfg, w, http.StatusNotFound, "Session not found.")

			return
		}
		if err != nil {
			errs <- err
			serveErrorPage(cfg, w, http.StatusInternalServerError, "Unable to load the session. Please try again.")

			return
		}

		_ = getOrSetPlayerID(cfg, w, r)

		data := newPageData(cfg, g.Name)
		data.Game = &g
		data.PlayerName = recentPlayerName(r)

		render(cfg, tmpl, w, http.StatusOK, "game.html", data, errs)
	}
}

// serveDeleteGame handles the recent list's delete button, then sends the
// browser back to a freshly loaded list.
func serveDeleteGame(cfg *Config, sessions *Sessions, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		playerID := getOrSetPlayerID(cfg, w, r)

		err := sessions.Remove(r.Context(), playerID, p.ByName("gameid"))
		switch {
		case err == nil:
			http.Redirect(w, r, cfg.prefix+"/", http.StatusSeeOther)
		case errors.Is(err, ErrGameNotFound):
			serveErrorPage(cfg, w, http.StatusNotFound, "Session not found.")
		case errors.Is(err, ErrNotModerator):
			serveErrorPage(cfg, w, http.StatusForbidden, "Only a moderator may delete this session.")
		default:
			errs <- err
			serveErrorPage(cfg, w, http.StatusInternalServerError, "Unable to delete the session. Please try again.")
		}
	}
}

var infoPages = map[string][]string{
	"About Planning Poker": {
		"Planning poker is a consensus-based technique for estimating effort. Each team member privately picks a card, and all cards are revealed at once.",
		"Revealing together keeps early voices from anchoring everyone else, and large differences start a conversation about what the work really involves.",
	},
	"Guide": {
		"Create a session and pick the scale your team estimates with: Fibonacci, short Fibonacci, T-shirt sizes, a mix of both, or your own values.",
		"Share the session link or QR code. Each player joins with a name and picks a card. Moderators reveal the cards once everyone has voted, then restart for the next story.",
		"Allowing members to manage the session lets every player reveal, restart and delete it, not just the person who created it.",
	},
	"Examples": {
		"Fibonacci: 0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89. The growing gaps reflect growing uncertainty.",
		"Short Fibonacci: 0, ½, 1, 2, 3, 5, 8, 13, 20, 40, 100. Familiar from most planning poker decks.",
		"T-Shirt: XXS to XXL, for rough sizing early in a project.",
		"Custom: any two to fifteen values of your choice, up to three characters each.",
	},
}

func serveInfoPage(cfg *Config, tmpl *template.Template, title string, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data := newPageData(cfg, title)
		data.Paragraphs = infoPages[title]

		render(cfg, tmpl, w, http.StatusOK, "info.html", data, errs)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		fname := "assets/" + strings.TrimPrefix(path.Clean(p.ByName("asset")), "/")

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		switch strings.ToLower(path.Ext(fname)) {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		}

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logServed(cfg, r, "Asset "+fname, written, startTime)
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /game/
Disallow: /api/

User-agent: GPTBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
