/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxSessionName = 100
	maxCustomValue = 3
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrNotModerator = errors.New("only a moderator may manage this session")
)

// validationError is returned for input the user can correct and resubmit.
type validationError struct {
	Field   string
	Message string
}

func (e *validationError) Error() string {
	return e.Message
}

// Game is a persisted planning poker session.
type Game struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	CreatedBy            string    `json:"createdBy"`
	CreatedByID          string    `json:"createdById"`
	ScaleType            ScaleType `json:"gameType"`
	AllowMembersToManage bool      `json:"isAllowMembersToManageSession"`
	Cards                []Card    `json:"cards"`
	CreatedAt            time.Time `json:"createdAt"`
}

// RecentGame is the listing projection of a game for one player.
type RecentGame struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	CreatedBy            string `json:"createdBy"`
	CreatedByID          string `json:"createdById"`
	AllowMembersToManage bool   `json:"isAllowMembersToManageSession"`
}

// NewGame is what a player submits to create a session.
type NewGame struct {
	Name                 string    `json:"name"`
	CreatedBy            string    `json:"createdBy"`
	ScaleType            ScaleType `json:"gameType"`
	AllowMembersToManage bool      `json:"isAllowMembersToManageSession"`
	CustomValues         []string  `json:"customValues,omitempty"`
}

// build validates the submission and derives the game record. Nothing is
// written here, so a rejected submission never reaches the store.
func (n NewGame) build(creatorID string, now time.Time) (Game, error) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return Game{}, &validationError{Field: "name", Message: "Please enter a session name."}
	}
	if utf8.RuneCountInString(name) > maxSessionName {
		return Game{}, &validationError{Field: "name", Message: "Please keep the session name to 100 characters."}
	}

	createdBy := strings.TrimSpace(n.CreatedBy)
	if createdBy == "" {
		return Game{}, &validationError{Field: "createdBy", Message: "Please enter your name."}
	}
	if utf8.RuneCountInString(createdBy) > maxPlayerName {
		return Game{}, &validationError{Field: "createdBy", Message: "Please keep your name to 64 characters."}
	}

	scale, err := parseScaleType(string(n.ScaleType))
	if err != nil {
		return Game{}, &validationError{Field: "gameType", Message: "Please choose a session sizing type."}
	}

	var cards []Card
	if scale == Custom {
		if len(n.CustomValues) > customSlots {
			return Game{}, &validationError{Field: "customValues", Message: "Please enter at most 15 values."}
		}
		for _, v := range n.CustomValues {
			if utf8.RuneCountInString(strings.TrimSpace(v)) > maxCustomValue {
				return Game{}, &validationError{Field: "customValues", Message: "Please keep each value to 3 characters."}
			}
		}
		if countCustomValues(n.CustomValues) < minCustomValues {
			return Game{}, &validationError{Field: "customValues", Message: "Please enter at least two values."}
		}
		cards = customCards(n.CustomValues)
	} else {
		cards = cardsFor(scale)
	}

	return Game{
		Name:                 name,
		CreatedBy:            createdBy,
		CreatedByID:          creatorID,
		ScaleType:            scale,
		AllowMembersToManage: n.AllowMembersToManage,
		Cards:                cards,
		CreatedAt:            now.UTC(),
	}, nil
}

// isModerator reports whether viewerID may manage a session created by
// creatorID.
func isModerator(creatorID, viewerID string, allowMembers bool) bool {
	return allowMembers || viewerID == creatorID
}

// moderatedBy applies isModerator to a request's player. A request without a
// player ID never counts as the creator.
func moderatedBy(creatorID, playerID string, allowMembers bool) bool {
	if playerID == "" {
		return allowMembers
	}
	return isModerator(creatorID, playerID, allowMembers)
}

func (g Game) moderatedBy(playerID string) bool {
	return moderatedBy(g.CreatedByID, playerID, g.AllowMembersToManage)
}

func (g RecentGame) moderatedBy(playerID string) bool {
	return moderatedBy(g.CreatedByID, playerID, g.AllowMembersToManage)
}

// visibleRecent drops entries without a name, which have nothing to show.
func visibleRecent(games []RecentGame) []RecentGame {
	out := make([]RecentGame, 0, len(games))
	for _, g := range games {
		if g.Name == "" {
			continue
		}
		out = append(out, g)
	}
	return out
}
