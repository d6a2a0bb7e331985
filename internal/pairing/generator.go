// Package pairing produces the player pairings for a tournament round.
//
// Every function here is pure: it reads entrants and match history and returns
// pairings without touching storage. A Pairing with an empty Black is a bye.
package pairing

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/chess-tournaments/internal/domain"
)

// Mode selects the pairing algorithm
type Mode string

const (
	ModeRandom  Mode = "random"
	ModeRating  Mode = "rating"
	ModeSwiss   Mode = "swiss"
	ModeBracket Mode = "bracket"
	// ModeSeeded pairs entrants consecutively in the order given
	ModeSeeded Mode = "seeded"
)

// ParseMode converts a string into a Mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeRandom, ModeRating, ModeSwiss, ModeBracket, ModeSeeded:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidPairingMode, s)
}

// ModeFor maps a tournament pairing system onto a first-round mode
func ModeFor(system domain.PairingSystem) Mode {
	switch system {
	case domain.PairingRating:
		return ModeRating
	case domain.PairingSwiss:
		return ModeSwiss
	case domain.PairingManual:
		return ModeSeeded
	default:
		return ModeRandom
	}
}

// maxSwissSteps bounds the rematch-avoiding search before falling back to greedy
const maxSwissSteps = 100000

// Entrant is a player available for pairing
type Entrant struct {
	PlayerID string `json:"player_id" validate:"required"`
	Rating   int    `json:"rating" validate:"min=0"`
}

// Pairing is one board of a round; Black is empty for a bye
type Pairing struct {
	White string `json:"white"`
	Black string `json:"black,omitempty"`
}

// IsBye reports whether the pairing awards a bye to White
func (p Pairing) IsBye() bool {
	return p.Black == ""
}

// Options carries the context some modes need
type Options struct {
	// History holds every match already played in the tournament (swiss)
	History []domain.Match
	// Byes counts byes already awarded per player (swiss)
	Byes map[string]int
	// Rand drives random mode; nil seeds from the clock
	Rand *rand.Rand
}

// Generate pairs entrants according to mode.
// Entrant order matters for bracket mode, which folds the list top against bottom.
func Generate(entrants []Entrant, mode Mode, opts Options) ([]Pairing, error) {
	if err := checkEntrants(entrants); err != nil {
		return nil, err
	}

	switch mode {
	case ModeRandom:
		rng := opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		shuffled := append([]Entrant(nil), entrants...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return consecutive(shuffled), nil
	case ModeRating:
		sorted := append([]Entrant(nil), entrants...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Rating > sorted[j].Rating
		})
		return consecutive(sorted), nil
	case ModeBracket:
		return fold(entrants), nil
	case ModeSeeded:
		return consecutive(entrants), nil
	case ModeSwiss:
		return swiss(entrants, opts), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPairingMode, mode)
}

func checkEntrants(entrants []Entrant) error {
	seen := make(map[string]struct{}, len(entrants))
	for _, e := range entrants {
		if e.PlayerID == "" {
			return fmt.Errorf("%w: entrant without player id", domain.ErrInvalidRequest)
		}
		if e.Rating < 0 {
			return fmt.Errorf("%w: player %s has rating %d", domain.ErrInvalidRating, e.PlayerID, e.Rating)
		}
		if _, dup := seen[e.PlayerID]; dup {
			return fmt.Errorf("%w: player %s listed twice", domain.ErrInvalidRequest, e.PlayerID)
		}
		seen[e.PlayerID] = struct{}{}
	}
	return nil
}

// consecutive pairs 1v2, 3v4, ... and gives the last player a bye when odd
func consecutive(entrants []Entrant) []Pairing {
	pairings := make([]Pairing, 0, (len(entrants)+1)/2)
	for i := 0; i+1 < len(entrants); i += 2 {
		pairings = append(pairings, Pairing{White: entrants[i].PlayerID, Black: entrants[i+1].PlayerID})
	}
	if len(entrants)%2 == 1 {
		pairings = append(pairings, Pairing{White: entrants[len(entrants)-1].PlayerID})
	}
	return pairings
}

// fold pairs position i against n-1-i; the middle player of an odd list gets a bye
func fold(entrants []Entrant) []Pairing {
	n := len(entrants)
	pairings := make([]Pairing, 0, (n+1)/2)
	for i := 0; i < n/2; i++ {
		pairings = append(pairings, Pairing{White: entrants[i].PlayerID, Black: entrants[n-1-i].PlayerID})
	}
	if n%2 == 1 {
		pairings = append(pairings, Pairing{White: entrants[n/2].PlayerID})
	}
	return pairings
}

// Scores returns the running tournament score per player: match points plus one per bye
func Scores(history []domain.Match, byes map[string]int) map[string]float64 {
	scores := make(map[string]float64)
	for i := range history {
		m := &history[i]
		if !m.Status.Finished() {
			continue
		}
		scores[m.WhitePlayerID] += m.Points(m.WhitePlayerID)
		scores[m.BlackPlayerID] += m.Points(m.BlackPlayerID)
	}
	for id, n := range byes {
		scores[id] += float64(n)
	}
	return scores
}

func opponents(history []domain.Match) map[string]map[string]bool {
	played := make(map[string]map[string]bool)
	mark := func(a, b string) {
		if played[a] == nil {
			played[a] = make(map[string]bool)
		}
		played[a][b] = true
	}
	for _, m := range history {
		if m.WhitePlayerID == "" || m.BlackPlayerID == "" {
			continue
		}
		mark(m.WhitePlayerID, m.BlackPlayerID)
		mark(m.BlackPlayerID, m.WhitePlayerID)
	}
	return played
}

// swiss ranks by score then rating, hands a bye to the lowest-ranked player
// without one, and pairs each player with the highest-ranked opponent not yet met.
func swiss(entrants []Entrant, opts Options) []Pairing {
	scores := Scores(opts.History, opts.Byes)
	played := opponents(opts.History)

	ranked := append([]Entrant(nil), entrants...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].PlayerID], scores[ranked[j].PlayerID]
		if si != sj {
			return si > sj
		}
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating > ranked[j].Rating
		}
		return ranked[i].PlayerID < ranked[j].PlayerID
	})

	var bye *Pairing
	if len(ranked)%2 == 1 {
		idx := len(ranked) - 1
		for i := len(ranked) - 1; i >= 0; i-- {
			if opts.Byes[ranked[i].PlayerID] == 0 {
				idx = i
				break
			}
		}
		bye = &Pairing{White: ranked[idx].PlayerID}
		ranked = append(ranked[:idx:idx], ranked[idx+1:]...)
	}

	ids := make([]string, len(ranked))
	for i, e := range ranked {
		ids[i] = e.PlayerID
	}

	pairings, ok := pairAvoidingRematches(ids, played)
	if !ok {
		pairings = pairGreedy(ids, played)
	}
	if bye != nil {
		pairings = append(pairings, *bye)
	}
	return pairings
}

func pairAvoidingRematches(ids []string, played map[string]map[string]bool) ([]Pairing, bool) {
	used := make([]bool, len(ids))
	out := make([]Pairing, 0, len(ids)/2)
	steps := 0

	var solve func() bool
	solve = func() bool {
		first := -1
		for i := range ids {
			if !used[i] {
				first = i
				break
			}
		}
		if first < 0 {
			return true
		}
		used[first] = true
		for j := first + 1; j < len(ids); j++ {
			if used[j] || played[ids[first]][ids[j]] {
				continue
			}
			steps++
			if steps > maxSwissSteps {
				break
			}
			used[j] = true
			out = append(out, Pairing{White: ids[first], Black: ids[j]})
			if solve() {
				return true
			}
			out = out[:len(out)-1]
			used[j] = false
		}
		used[first] = false
		return false
	}

	if !solve() {
		return nil, false
	}
	return out, true
}

// pairGreedy prefers fresh opponents but accepts a rematch when nothing else is left
func pairGreedy(ids []string, played map[string]map[string]bool) []Pairing {
	used := make([]bool, len(ids))
	out := make([]Pairing, 0, len(ids)/2)
	for i := range ids {
		if used[i] {
			continue
		}
		used[i] = true
		pick := -1
		for j := i + 1; j < len(ids); j++ {
			if used[j] {
				continue
			}
			if pick < 0 {
				pick = j
			}
			if !played[ids[i]][ids[j]] {
				pick = j
				break
			}
		}
		if pick < 0 {
			out = append(out, Pairing{White: ids[i]})
			continue
		}
		used[pick] = true
		out = append(out, Pairing{White: ids[i], Black: ids[pick]})
	}
	return out
}

// SwissRounds returns the default number of swiss rounds for n players: ceil(log2 n)
func SwissRounds(n int) int {
	if n < 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n))))
}
