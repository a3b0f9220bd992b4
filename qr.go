/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// gameURL rebuilds the public URL of a game page from the QR request,
// respecting TLS and X-Forwarded-Proto.
func gameURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}

	return scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")
}

// serveQR renders a PNG QR code pointing at the game, for sharing from a phone.
func serveQR(cfg *Config, sessions *Sessions, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		_, err := sessions.Get(r.Context(), p.ByName("gameid"))
		if errors.Is(err, ErrGameNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)

			return
		}
		if err != nil {
			errs <- err
			http.Error(w, "unable to load session", http.StatusInternalServerError)

			return
		}

		png, err := qrcode.Encode(gameURL(r), qrcode.Medium, qrSize)
		if err != nil {
			errs <- err
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		securityHeaders(cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logServed(cfg, r, "QR code for "+p.ByName("gameid"), written, startTime)
	}
}
