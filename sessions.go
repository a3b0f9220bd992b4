/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sessions creates, lists and removes games on behalf of a player.
type Sessions struct {
	cfg   *Config
	store *Store
	rooms *RoomManager
	now   func() time.Time
}

func newSessions(cfg *Config, store *Store, rooms *RoomManager) *Sessions {
	return &Sessions{
		cfg:   cfg,
		store: store,
		rooms: rooms,
		now:   time.Now,
	}
}

// Create validates n and stores it as a new game created by playerID.
// Validation failures are returned as *validationError before anything is
// written.
func (s *Sessions) Create(ctx context.Context, playerID string, n NewGame) (string, error) {
	g, err := n.build(playerID, s.now())
	if err != nil {
		return "", err
	}

	id, err := s.store.AddGame(ctx, g)
	if err != nil {
		return "", err
	}

	logf(s.cfg, "GAMES: Created %s game %s (%q by %q)", g.ScaleType, id, g.Name, g.CreatedBy)

	return id, nil
}

func (s *Sessions) Get(ctx context.Context, id string) (Game, error) {
	return s.store.GetGame(ctx, id)
}

// Recent returns playerID's recent games. If ctx ends while the query is in
// flight the result is dropped, since nobody is left to show it to.
func (s *Sessions) Recent(ctx context.Context, playerID string) ([]RecentGame, error) {
	games, err := s.store.RecentGames(ctx, playerID, s.cfg.recentLimit)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return games, nil
}

// Remove deletes a game if playerID is one of its moderators, and closes
// its room.
func (s *Sessions) Remove(ctx context.Context, playerID, gameID string) error {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}

	if !g.moderatedBy(playerID) {
		return ErrNotModerator
	}

	if err := s.store.RemoveGame(ctx, gameID); err != nil {
		return err
	}

	if s.rooms != nil {
		s.rooms.close(gameID)
	}

	logf(s.cfg, "GAMES: Removed game %s (%q)", gameID, g.Name)

	return nil
}

// Join records playerID as a member of gameID.
func (s *Sessions) Join(ctx context.Context, gameID, playerID, name string) error {
	if err := s.store.AddPlayer(ctx, gameID, playerID, name); err != nil {
		return fmt.Errorf("join %s: %w", gameID, err)
	}
	return nil
}

// Kick removes targetID from gameID on behalf of playerID.
func (s *Sessions) Kick(ctx context.Context, g Game, playerID, targetID string) error {
	if !g.moderatedBy(playerID) {
		return ErrNotModerator
	}
	return s.store.RemovePlayer(ctx, g.ID, targetID)
}

func isValidation(err error) (*validationError, bool) {
	var verr *validationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
