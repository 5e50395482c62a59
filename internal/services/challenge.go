// Package services – challenge generation
//
// Arithmetic challenge generator for the captcha engine. Difficulty climbs
// a four-step ladder; each lockout expiry bumps the user one step up, so
// scripted retry loops face progressively harder problems.
package services

import (
	"fmt"
	"math/rand"
)

// Difficulty ladder steps. Values are ordered; DifficultyExtreme is the cap.
const (
	DifficultyEasy = iota
	DifficultyMedium
	DifficultyHard
	DifficultyExtreme
)

// ParseDifficulty maps a configuration string to a ladder step.
// Unknown values default to hard.
func ParseDifficulty(s string) int {
	switch s {
	case "easy":
		return DifficultyEasy
	case "medium":
		return DifficultyMedium
	case "extreme":
		return DifficultyExtreme
	default:
		return DifficultyHard
	}
}

// clampDifficulty bounds a step to the ladder.
func clampDifficulty(d int) int {
	if d < DifficultyEasy {
		return DifficultyEasy
	}
	if d > DifficultyExtreme {
		return DifficultyExtreme
	}
	return d
}

// generateChallenge produces a human-solvable arithmetic problem at the
// given difficulty step and its integer answer. Division problems are
// constructed from the answer so they always divide evenly.
func generateChallenge(difficulty int) (question string, answer int) {
	switch clampDifficulty(difficulty) {
	case DifficultyEasy:
		if rand.Intn(2) == 0 {
			a, b := rand.Intn(11)+10, rand.Intn(11)+10
			return fmt.Sprintf("%d + %d = ?", a, b), a + b
		}
		a := rand.Intn(21) + 20
		b := rand.Intn(a-5) + 5
		return fmt.Sprintf("%d - %d = ?", a, b), a - b

	case DifficultyMedium:
		if rand.Intn(2) == 0 {
			a, b := rand.Intn(10)+3, rand.Intn(10)+3
			return fmt.Sprintf("%d × %d = ?", a, b), a * b
		}
		a, b, c := rand.Intn(16)+10, rand.Intn(16)+10, rand.Intn(11)+5
		return fmt.Sprintf("%d + %d - %d = ?", a, b, c), a + b - c

	case DifficultyHard:
		switch rand.Intn(4) {
		case 0:
			a, b := rand.Intn(9)+11, rand.Intn(7)+3
			return fmt.Sprintf("%d × %d = ?", a, b), a * b
		case 1:
			divisor := rand.Intn(8) + 2
			quotient := rand.Intn(11) + 5
			return fmt.Sprintf("%d ÷ %d = ?", divisor*quotient, divisor), quotient
		case 2:
			a, b, c, d := rand.Intn(11)+10, rand.Intn(11)+5, rand.Intn(8)+3, rand.Intn(7)+2
			return fmt.Sprintf("(%d + %d) × %d - %d = ?", a, b, c, d), (a+b)*c - d
		default:
			a := rand.Intn(51) + 50
			b := rand.Intn(a-20) + 20
			return fmt.Sprintf("%d - %d = ?", a, b), a - b
		}

	default: // DifficultyExtreme
		switch rand.Intn(4) {
		case 0:
			a, b := rand.Intn(11)+15, rand.Intn(9)+4
			return fmt.Sprintf("%d × %d = ?", a, b), a * b
		case 1:
			divisor := rand.Intn(10) + 3
			quotient := rand.Intn(13) + 8
			return fmt.Sprintf("%d ÷ %d = ?", divisor*quotient, divisor), quotient
		case 2:
			e := rand.Intn(5) + 1
			inner := (rand.Intn(8) + 8) + (rand.Intn(8) + 5)
			c := rand.Intn(6) + 3
			d := rand.Intn(5) + 2
			// Shift the subtrahend so the division is exact.
			total := inner*c - d
			d += total % e
			return fmt.Sprintf("((%d + %d) × %d - %d) ÷ %d = ?", inner/2, inner-inner/2, c, d, e), (inner*c - d) / e
		default:
			a, b := rand.Intn(11)+20, rand.Intn(11)+5
			return fmt.Sprintf("%d × %d = ?", a, b), a * b
		}
	}
}
