package progression

import (
	"sort"

	"github.com/chess-tournaments/internal/domain"
)

// ByesScore reports whether a bye is worth a point in the given format.
// Round robin byes are rest rounds; elsewhere a bye is an automatic win.
func ByesScore(format domain.Format) bool {
	return format != domain.FormatRoundRobin
}

// Standings ranks participants by score, then wins, then player id
func Standings(format domain.Format, participants []domain.Participant, matches []domain.Match) []domain.Standing {
	rows := make(map[string]*domain.Standing, len(participants))
	for _, p := range participants {
		rows[p.PlayerID] = &domain.Standing{PlayerID: p.PlayerID, Byes: len(p.ByeRounds)}
		if ByesScore(format) {
			rows[p.PlayerID].Score = float64(len(p.ByeRounds))
		}
	}

	for i := range matches {
		m := &matches[i]
		if !m.Status.Finished() {
			continue
		}
		for _, id := range []string{m.WhitePlayerID, m.BlackPlayerID} {
			row, ok := rows[id]
			if !ok {
				continue
			}
			row.Score += m.Points(id)
			switch {
			case m.Result == domain.ResultDraw:
				row.Draws++
			case m.WinnerID == id:
				row.Wins++
			default:
				row.Losses++
			}
		}
	}

	out := make([]domain.Standing, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
