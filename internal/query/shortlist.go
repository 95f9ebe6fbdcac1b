package query

// shortlist collects decoded candidate values per hole in first-seen
// order, with the best decode similarity observed for each.
type shortlist struct {
	values   map[string][]string
	evidence map[string]map[string]float64
}

func newShortlist(holes []string) *shortlist {
	s := &shortlist{
		values:   make(map[string][]string, len(holes)),
		evidence: make(map[string]map[string]float64, len(holes)),
	}
	for _, h := range holes {
		s.evidence[h] = make(map[string]float64)
	}
	return s
}

func (s *shortlist) add(hole, value string, sim float64) {
	ev := s.evidence[hole]
	prev, seen := ev[value]
	if !seen {
		s.values[hole] = append(s.values[hole], value)
	}
	if !seen || sim > prev {
		ev[value] = sim
	}
}

// best is the value with the strongest decode evidence, earliest seen on
// ties; "" when nothing decoded above the floor.
func (s *shortlist) best(hole string) string {
	best, bestSim := "", -1.0
	for _, v := range s.values[hole] {
		if sim := s.evidence[hole][v]; sim > bestSim {
			best, bestSim = v, sim
		}
	}
	return best
}
