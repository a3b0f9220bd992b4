/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("pokerbox v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logServed(cfg, r, "Version page", written, startTime)
	}
}

// newRouter registers every route. cfg.prefix must already be normalized.
func newRouter(cfg *Config, sessions *Sessions, rooms *RoomManager, tmpl *template.Template, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		errs <- fmt.Errorf("panic serving %s: %v", r.URL.Path, i)
		serveErrorPage(cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.")
	}

	mux.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveErrorPage(cfg, w, http.StatusNotFound, "Page not found.")
	})

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, sessions, tmpl, errs))
	mux.POST(cfg.prefix+"/", serveCreateGame(cfg, sessions, tmpl, errs))

	mux.GET(cfg.prefix+"/join", serveJoinPage(cfg, tmpl, errs))
	mux.POST(cfg.prefix+"/join", serveJoinGame(cfg, sessions, tmpl, errs))

	mux.GET(cfg.prefix+"/about-planning-poker", serveInfoPage(cfg, tmpl, "About Planning Poker", errs))
	mux.GET(cfg.prefix+"/guide", serveInfoPage(cfg, tmpl, "Guide", errs))
	mux.GET(cfg.prefix+"/examples", serveInfoPage(cfg, tmpl, "Examples", errs))

	mux.GET(cfg.prefix+"/game/:gameid", serveGamePage(cfg, sessions, tmpl, errs))
	mux.GET(cfg.prefix+"/game/:gameid/ws", serveRoomWS(cfg, sessions, rooms))
	mux.GET(cfg.prefix+"/game/:gameid/qr", serveQR(cfg, sessions, errs))
	mux.POST(cfg.prefix+"/game/:gameid/delete", serveDeleteGame(cfg, sessions, errs))

	mux.POST(cfg.prefix+"/api/games", serveAPICreateGame(cfg, sessions, errs))
	mux.GET(cfg.prefix+"/api/games/:gameid", serveAPIGetGame(cfg, sessions, errs))
	mux.DELETE(cfg.prefix+"/api/games/:gameid", serveAPIRemoveGame(cfg, sessions, errs))
	mux.GET(cfg.prefix+"/api/recent", serveAPIRecent(cfg, sessions, errs))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return mux
}

// logErrors drains handler errors until ctx ends.
func logErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}
}

func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: pokerbox v%s", releaseVersion)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	store, err := openStore(cfg.database)
	if err != nil {
		return err
	}
	defer store.Close()

	logf(cfg, "STORE: Opened %s", cfg.database)

	tmpl, err := parseTemplates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	errs := make(chan error, 64)
	go logErrors(ctx, errs)

	rooms := newRoomManager(ctx, cfg.sessionTimeout)
	sessions := newSessions(cfg, store, rooms)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, sessions, rooms, tmpl, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	serveErrs := make(chan error, 1)

	go func() {
		var err error
		logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErrs:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	rooms.closeAll()

	return nil
}
