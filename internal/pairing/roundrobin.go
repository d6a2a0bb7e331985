package pairing

// RoundRobinRounds returns the number of rounds a full round robin of n players needs
func RoundRobinRounds(n int) int {
	switch {
	case n < 2:
		return 0
	case n%2 == 0:
		return n - 1
	default:
		return n
	}
}

// RoundRobin builds the complete schedule with the circle method.
// The first entrant stays fixed while the rest rotate one seat per round; with an
// odd field a phantom seat is added and whoever faces it gets that round's bye.
// Every unordered pair of entrants meets exactly once.
func RoundRobin(entrants []Entrant) ([][]Pairing, error) {
	if err := checkEntrants(entrants); err != nil {
		return nil, err
	}
	n := len(entrants)
	if n < 2 {
		return nil, nil
	}

	seats := make([]string, 0, n+1)
	for _, e := range entrants {
		seats = append(seats, e.PlayerID)
	}
	if n%2 == 1 {
		seats = append(seats, "")
	}
	size := len(seats)
	half := size / 2

	rounds := make([][]Pairing, 0, size-1)
	for r := 0; r < size-1; r++ {
		round := make([]Pairing, 0, half)
		var bye *Pairing
		for i := 0; i < half; i++ {
			a, b := seats[i], seats[size-1-i]
			// alternate colours on the fixed board so seat 0 is not always white
			if i == 0 && r%2 == 1 {
				a, b = b, a
			}
			switch {
			case a == "":
				bye = &Pairing{White: b}
			case b == "":
				bye = &Pairing{White: a}
			default:
				round = append(round, Pairing{White: a, Black: b})
			}
		}
		if bye != nil {
			round = append(round, *bye)
		}
		rounds = append(rounds, round)

		// rotate everything but the fixed seat clockwise
		last := seats[size-1]
		copy(seats[2:], seats[1:size-1])
		seats[1] = last
	}
	return rounds, nil
}
