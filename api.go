/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

const maxBodySize = 64 << 10

type apiError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type createdResponse struct {
	ID string `json:"id"`
}

type gameResponse struct {
	Game
	IsModerator bool `json:"isModerator"`
}

type recentResponse struct {
	RecentGame
	IsModerator bool `json:"isModerator"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

// writeAPIError maps service errors onto status codes.
func writeAPIError(cfg *Config, w http.ResponseWriter, err error, errs chan<- error) {
	if verr, ok := isValidation(err); ok {
		writeJSON(cfg, w, http.StatusUnprocessableEntity, apiError{Error: verr.Message, Field: verr.Field}, errs)

		return
	}

	switch {
	case errors.Is(err, ErrGameNotFound):
		writeJSON(cfg, w, http.StatusNotFound, apiError{Error: err.Error()}, errs)
	case errors.Is(err, ErrNotModerator):
		writeJSON(cfg, w, http.StatusForbidden, apiError{Error: err.Error()}, errs)
	default:
		errs <- err
		writeJSON(cfg, w, http.StatusInternalServerError, apiError{Error: "internal error"}, errs)
	}
}

func serveAPICreateGame(cfg *Config, sessions *Sessions, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var n NewGame

		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&n); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "invalid request body"}, errs)

			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)

		id, err := sessions.Create(r.Context(), playerID, n)
		if err != nil {
			writeAPIError(cfg, w, err, errs)

			return
		}

		setRecentPlayerName(cfg, w, strings.TrimSpace(n.CreatedBy))

		w.Header().Set("Location", cfg.prefix+"/game/"+id)
		writeJSON(cfg, w, http.StatusCreated, createdResponse{ID: id}, errs)
	}
}

func serveAPIGetGame(cfg *Config, sessions *Sessions, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		g, err := sessions.Get(r.Context(), p.ByName("gameid"))
		if err != nil {
			writeAPIError(cfg, w, err, errs)

			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)

		writeJSON(cfg, w, http.StatusOK, gameResponse{Game: g, IsModerator: g.moderatedBy(playerID)}, errs)
	}
}

func serveAPIRemoveGame(cfg *Config, sessions *Sessions, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		playerID := getOrSetPlayerID(cfg, w, r)

		if err := sessions.Remove(r.Context(), playerID, p.ByName("gameid")); err != nil {
			writeAPIError(cfg, w, err, errs)

			return
		}

		writeJSON(cfg, w, http.StatusNoContent, nil, errs)
	}
}

func serveAPIRecent(cfg *Config, sessions *Sessions, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(cfg, w, r)

		games, err := sessions.Recent(r.Context(), playerID)
		if r.Context().Err() != nil {
			return
		}
		if err != nil {
			writeAPIError(cfg, w, err, errs)

			return
		}

		games = visibleRecent(games)

		out := make([]recentResponse, 0, len(games))
		for _, g := range games {
			out = append(out, recentResponse{RecentGame: g, IsModerator: g.moderatedBy(playerID)})
		}

		writeJSON(cfg, w, http.StatusOK, out, errs)
	}
}
