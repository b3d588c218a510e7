package lev

// MaxDistance is the largest edit distance still considered a match.
const MaxDistance = 3

// Scorer computes edit distances, reusing its scratch buffers between calls.
// A Scorer is not safe for concurrent use; give each query its own.
type Scorer struct {
	row []int
	ra  []rune
	rb  []rune
}

// Distance returns the Levenshtein distance between a and b with unit costs.
// Comparison is case-sensitive; callers lowercase beforehand.
func (s *Scorer) Distance(a, b string) int {
	if a == b {
		return 0
	}
	s.ra = appendRunes(s.ra[:0], a)
	s.rb = appendRunes(s.rb[:0], b)
	la, lb := len(s.ra), len(s.rb)
	if la == 0 || lb == 0 {
		return la + lb
	}

	if cap(s.row) < la {
		s.row = make([]int, la)
	}
	row := s.row[:la]
	for i := range row {
		row[i] = i + 1
	}

	var b2 int
	for j, cb := range s.rb {
		diag := j
		b2 = j + 1
		for i, ca := range s.ra {
			cost := diag
			if ca != cb {
				cost++
			}
			diag = row[i]
			switch {
			case b2 < diag:
				b2 = min(b2+1, cost)
			default:
				b2 = min(diag+1, cost)
			}
			row[i] = b2
		}
	}
	return b2
}

// Distance is a convenience wrapper that uses a throwaway Scorer.
func Distance(a, b string) int {
	var s Scorer
	return s.Distance(a, b)
}

func appendRunes(dst []rune, s string) []rune {
	for _, r := range s {
		dst = append(dst, r)
	}
	return dst
}
