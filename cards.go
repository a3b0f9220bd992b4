/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// ScaleType is the family of values players pick from in a session.
type ScaleType string

const (
	Fibonacci       ScaleType = "Fibonacci"
	ShortFibonacci  ScaleType = "ShortFibonacci"
	TShirt          ScaleType = "TShirt"
	TShirtAndNumber ScaleType = "TShirtAndNumber"
	Custom          ScaleType = "Custom"
)

const (
	customSlots     = 15
	minCustomValues = 2

	unsureValue = -1
	coffeeValue = -2
)

var scaleTypes = []ScaleType{Fibonacci, ShortFibonacci, TShirt, TShirtAndNumber, Custom}

func parseScaleType(s string) (ScaleType, error) {
	for _, t := range scaleTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}

	return "", fmt.Errorf("unknown scale type %q", s)
}

func (t ScaleType) Label() string {
	switch t {
	case ShortFibonacci:
		return "Short Fibonacci"
	case TShirt:
		return "T-Shirt"
	case TShirtAndNumber:
		return "T-Shirt & Numbers"
	default:
		return string(t)
	}
}

// Card is a single selectable estimate.
type Card struct {
	Value        float64 `json:"value"`
	DisplayValue string  `json:"displayValue"`
	Color        string  `json:"color"`
}

// score returns the number a card contributes to the round average. Custom
// cards count only when their label parses as a number.
func (c Card) score(t ScaleType) (float64, bool) {
	if c.Value < 0 {
		return 0, false
	}
	if t != Custom {
		return c.Value, true
	}

	f, err := strconv.ParseFloat(c.DisplayValue, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var (
	unsureCard = Card{Value: unsureValue, DisplayValue: "?", Color: "white"}
	coffeeCard = Card{Value: coffeeValue, DisplayValue: "☕", Color: "white"}
)

var decks = map[ScaleType][]Card{
	Fibonacci: {
		{Value: 0, DisplayValue: "0", Color: "var(--color-background-secondary)"},
		{Value: 1, DisplayValue: "1", Color: "#9EC8FE"},
		{Value: 2, DisplayValue: "2", Color: "#9EC8FE"},
		{Value: 3, DisplayValue: "3", Color: "#A3DFF2"},
		{Value: 5, DisplayValue: "5", Color: "#A3DFF2"},
		{Value: 8, DisplayValue: "8", Color: "#9DD49A"},
		{Value: 13, DisplayValue: "13", Color: "#9DD49A"},
		{Value: 21, DisplayValue: "21", Color: "#F4DD94"},
		{Value: 34, DisplayValue: "34", Color: "#F4DD94"},
		{Value: 55, DisplayValue: "55", Color: "#F39893"},
		{Value: 89, DisplayValue: "89", Color: "#F39893"},
		unsureCard,
		coffeeCard,
	},
	ShortFibonacci: {
		{Value: 0, DisplayValue: "0", Color: "var(--color-background-secondary)"},
		{Value: 0.5, DisplayValue: "½", Color: "#9EC8FE"},
		{Value: 1, DisplayValue: "1", Color: "#9EC8FE"},
		{Value: 2, DisplayValue: "2", Color: "#A3DFF2"},
		{Value: 3, DisplayValue: "3", Color: "#A3DFF2"},
		{Value: 5, DisplayValue: "5", Color: "#9DD49A"},
		{Value: 8, DisplayValue: "8", Color: "#9DD49A"},
		{Value: 13, DisplayValue: "13", Color: "#F4DD94"},
		{Value: 20, DisplayValue: "20", Color: "#F4DD94"},
		{Value: 40, DisplayValue: "40", Color: "#F39893"},
		{Value: 100, DisplayValue: "100", Color: "#F39893"},
		unsureCard,
		coffeeCard,
	},
	TShirt: {
		{Value: 1, DisplayValue: "XXS", Color: "#9EC8FE"},
		{Value: 2, DisplayValue: "XS", Color: "#9EC8FE"},
		{Value: 3, DisplayValue: "S", Color: "#A3DFF2"},
		{Value: 4, DisplayValue: "M", Color: "#9DD49A"},
		{Value: 5, DisplayValue: "L", Color: "#F4DD94"},
		{Value: 6, DisplayValue: "XL", Color: "#F39893"},
		{Value: 7, DisplayValue: "XXL", Color: "#F39893"},
		unsureCard,
		coffeeCard,
	},
	TShirtAndNumber: {
		{Value: 1, DisplayValue: "1", Color: "#9EC8FE"},
		{Value: 2, DisplayValue: "2", Color: "#9EC8FE"},
		{Value: 3, DisplayValue: "3", Color: "#A3DFF2"},
		{Value: 4, DisplayValue: "4", Color: "#A3DFF2"},
		{Value: 5, DisplayValue: "5", Color: "#9DD49A"},
		{Value: 15, DisplayValue: "XS", Color: "#9EC8FE"},
		{Value: 25, DisplayValue: "S", Color: "#A3DFF2"},
		{Value: 35, DisplayValue: "M", Color: "#9DD49A"},
		{Value: 45, DisplayValue: "L", Color: "#F4DD94"},
		{Value: 55, DisplayValue: "XL", Color: "#F39893"},
		unsureCard,
		coffeeCard,
	},
}

var customColors = []string{"#9EC8FE", "#A3DFF2", "#9DD49A", "#F4DD94", "#F39893"}

// cardsFor returns a copy of the standard deck for t. Custom has no standard
// deck; use customCards instead.
func cardsFor(t ScaleType) []Card {
	deck := decks[t]

	out := make([]Card, len(deck))
	copy(out, deck)

	return out
}

// countCustomValues returns how many slots hold something other than whitespace.
func countCustomValues(values []string) int {
	count := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			count++
		}
	}
	return count
}

// customCards builds a deck from the non-empty trimmed values, keeping their order.
func customCards(values []string) []Card {
	cards := make([]Card, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		cards = append(cards, Card{
			Value:        float64(len(cards)),
			DisplayValue: v,
			Color:        customColors[len(cards)%len(customColors)],
		})
	}
	return cards
}
