/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package names provides the placeholder names offered on the create form.
package names

import (
	"math/rand/v2"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
)

// StarWars is the pool players are named from until they pick their own.
var StarWars = []string{
	"Ackbar",
	"Ahsoka Tano",
	"Anakin Skywalker",
	"Bail Organa",
	"Bib Fortuna",
	"Boba Fett",
	"Bodhi Rook",
	"BB-8",
	"C-3PO",
	"Cassian Andor",
	"Chewbacca",
	"Chirrut Îmwe",
	"Count Dooku",
	"Darth Maul",
	"Darth Vader",
	"Din Djarin",
	"Finn",
	"General Grievous",
	"Grand Moff Tarkin",
	"Greedo",
	"Han Solo",
	"Jabba the Hutt",
	"Jango Fett",
	"Jar Jar Binks",
	"Jyn Erso",
	"K-2SO",
	"Kylo Ren",
	"Lando Calrissian",
	"Leia Organa",
	"Luke Skywalker",
	"Mace Windu",
	"Maz Kanata",
	"Nien Nunb",
	"Obi-Wan Kenobi",
	"Padmé Amidala",
	"Poe Dameron",
	"Qui-Gon Jinn",
	"R2-D2",
	"Rey",
	"Sabine Wren",
	"Wedge Antilles",
	"Wicket W. Warrick",
	"Yoda",
}

// Player returns a random character name.
func Player() string {
	return StarWars[rand.IntN(len(StarWars))]
}

// Game returns a capitalized adjective and animal, such as "Brave Otter".
func Game() string {
	words := strings.Fields(petname.Generate(2, " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
