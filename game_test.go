package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsModerator(t *testing.T) {
	require.True(t, isModerator("a", "a", false))
	require.False(t, isModerator("a", "b", false))
	require.True(t, isModerator("a", "b", true))
	require.True(t, isModerator("", "b", true))
	require.True(t, isModerator("", "", false))
}

func TestModeratedByRequiresPlayerID(t *testing.T) {
	g := Game{CreatedByID: ""}
	require.False(t, g.moderatedBy(""))

	g.AllowMembersToManage = true
	require.True(t, g.moderatedBy(""))

	r := RecentGame{CreatedByID: "alice"}
	require.True(t, r.moderatedBy("alice"))
	require.False(t, r.moderatedBy(""))
}

func TestBuildStandardGame(t *testing.T) {
	now := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

	g, err := NewGame{
		Name:      " Sprint 1 ",
		CreatedBy: "Alice",
		ScaleType: Fibonacci,
	}.build("player-1", now)
	require.NoError(t, err)

	require.Equal(t, "Sprint 1", g.Name)
	require.Equal(t, "Alice", g.CreatedBy)
	require.Equal(t, "player-1", g.CreatedByID)
	require.Equal(t, Fibonacci, g.ScaleType)
	require.Equal(t, cardsFor(Fibonacci), g.Cards)
	require.False(t, g.AllowMembersToManage)
	require.Equal(t, now, g.CreatedAt)
}

func TestBuildRejectsMissingFields(t *testing.T) {
	cases := map[string]NewGame{
		"name":      {Name: "  ", CreatedBy: "Alice", ScaleType: Fibonacci},
		"createdBy": {Name: "Sprint", CreatedBy: "", ScaleType: Fibonacci},
		"gameType":  {Name: "Sprint", CreatedBy: "Alice", ScaleType: "Dice"},
	}

	for field, n := range cases {
		_, err := n.build("p", time.Now())
		verr, ok := isValidation(err)
		require.True(t, ok, field)
		require.Equal(t, field, verr.Field)
	}
}

func TestBuildCustomNeedsTwoValues(t *testing.T) {
	values := make([]string, customSlots)
	values[0] = "1"

	_, err := NewGame{Name: "S", CreatedBy: "A", ScaleType: Custom, CustomValues: values}.build("p", time.Now())
	verr, ok := isValidation(err)
	require.True(t, ok)
	require.Equal(t, "customValues", verr.Field)

	values[7] = " 3 "
	g, err := NewGame{Name: "S", CreatedBy: "A", ScaleType: Custom, CustomValues: values}.build("p", time.Now())
	require.NoError(t, err)
	require.Equal(t, customCards(values), g.Cards)
	require.Len(t, g.Cards, 2)
	require.Equal(t, "3", g.Cards[1].DisplayValue)
}

func TestBuildCustomRejectsTooManySlots(t *testing.T) {
	values := make([]string, customSlots+1)
	for i := range values {
		values[i] = "x"
	}

	_, err := NewGame{Name: "S", CreatedBy: "A", ScaleType: Custom, CustomValues: values}.build("p", time.Now())
	_, ok := isValidation(err)
	require.True(t, ok)
}

func TestVisibleRecentDropsUnnamed(t *testing.T) {
	got := visibleRecent([]RecentGame{
		{ID: "1", Name: "Sprint 1"},
		{ID: "2", Name: ""},
	})
	require.Equal(t, []RecentGame{{ID: "1", Name: "Sprint 1"}}, got)
}

func TestBuildRejectsOverlongFields(t *testing.T) {
	values := make([]string, customSlots)
	values[0] = "1"
	values[1] = "XXXL"

	cases := map[string]NewGame{
		"name":         {Name: strings.Repeat("a", maxSessionName+1), CreatedBy: "Alice", ScaleType: Fibonacci},
		"createdBy":    {Name: "Sprint", CreatedBy: strings.Repeat("b", maxPlayerName+1), ScaleType: Fibonacci},
		"customValues": {Name: "Sprint", CreatedBy: "Alice", ScaleType: Custom, CustomValues: values},
	}

	for field, n := range cases {
		_, err := n.build("p", time.Now())
		verr, ok := isValidation(err)
		require.True(t, ok, field)
		require.Equal(t, field, verr.Field)
	}
}

func TestBuildAcceptsLimitsInRunes(t *testing.T) {
	values := make([]string, customSlots)
	values[0] = "½"
	values[1] = " ☕☕☕ "

	g, err := NewGame{
		Name:         strings.Repeat("é", maxSessionName),
		CreatedBy:    strings.Repeat("ß", maxPlayerName),
		ScaleType:    Custom,
		CustomValues: values,
	}.build("p", time.Now())
	require.NoError(t, err)
	require.Len(t, g.Cards, 2)
}
