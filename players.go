/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	playerCookieName = "pokerbox_id"
	recentNameCookie = "pokerbox_name"
	cookieLifetime   = 365 * 24 * time.Hour
	maxPlayerName    = 64
)

// getOrSetPlayerID returns the browser's player ID, issuing one if needed.
func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		MaxAge:   int(cookieLifetime.Seconds()),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// recentPlayerName returns the name last used to create a session from this
// browser, if any.
func recentPlayerName(r *http.Request) string {
	c, err := r.Cookie(recentNameCookie)
	if err != nil {
		return ""
	}

	name, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}

	return cleanPlayerName(name)
}

func setRecentPlayerName(cfg *Config, w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     recentNameCookie,
		Value:    url.QueryEscape(name),
		Path:     cfg.prefix + "/",
		MaxAge:   int(cookieLifetime.Seconds()),
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func cleanPlayerName(name string) string {
	name = strings.TrimSpace(name)

	if r := []rune(name); len(r) > maxPlayerName {
		name = string(r[:maxPlayerName])
	}

	return name
}
