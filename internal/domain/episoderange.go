package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EpisodeRange is a finite, possibly-discontiguous, ordered set of
// 1-based episode numbers, parsed from expressions like "e1-e12",
// "e1-e12|e14", "e1-", "-e12" or the specials sentinel "e0".
type EpisodeRange struct {
	specials bool
	episodes map[int]struct{}
	ordered  []int
}

// ParseEpisodeRange parses a range expression. Segments are separated by
// '|', each segment is either a bare episode "eN", an open-low range
// "-eN", or a closed range "eN-eM". An open-high segment "eN-" is
// rejected here, since its upper bound depends on an episode count; use
// ResolveOpenEnded for those. The sentinel "e0" means "specials" and
// cannot be combined with other segments.
func ParseEpisodeRange(expr string) (EpisodeRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return EpisodeRange{}, fmt.Errorf("episode range: empty expression")
	}
	if expr == "e0" {
		return EpisodeRange{specials: true, episodes: map[int]struct{}{}}, nil
	}

	set := make(map[int]struct{})
	for _, segment := range strings.Split(expr, "|") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return EpisodeRange{}, fmt.Errorf("episode range %q: empty segment", expr)
		}
		if segment == "e0" {
			return EpisodeRange{}, fmt.Errorf("episode range %q: e0 cannot be combined with other segments", expr)
		}

		lo, hi, err := parseSegment(segment)
		if err != nil {
			return EpisodeRange{}, fmt.Errorf("episode range %q: %w", expr, err)
		}
		if hi == openEnded {
			return EpisodeRange{}, fmt.Errorf("episode range %q: open-ended ranges must be resolved against a known episode count before use", expr)
		}
		if hi < lo {
			return EpisodeRange{}, fmt.Errorf("episode range %q: reversed range %d-%d", expr, lo, hi)
		}
		for n := lo; n <= hi; n++ {
			set[n] = struct{}{}
		}
	}

	return newEpisodeRange(set), nil
}

// openEnded marks a range with no declared upper bound ("eN-").
const openEnded = -1

func parseSegment(segment string) (lo, hi int, err error) {
	switch {
	case strings.HasPrefix(segment, "-e"):
		// "-eN": open-low, 1..N
		hi, err = parseEpisodeToken(segment[1:])
		if err != nil {
			return 0, 0, err
		}
		return 1, hi, nil
	case strings.HasSuffix(segment, "-"):
		// "eN-": open-high, N..?
		lo, err = parseEpisodeToken(segment[:len(segment)-1])
		if err != nil {
			return 0, 0, err
		}
		return lo, openEnded, nil
	case strings.Contains(segment, "-"):
		parts := strings.SplitN(segment, "-", 2)
		lo, err = parseEpisodeToken(parts[0])
		if err != nil {
			return 0, 0, err
		}
		hi, err = parseEpisodeToken(parts[1])
		if err != nil {
			return 0, 0, err
		}
		return lo, hi, nil
	default:
		n, err := parseEpisodeToken(segment)
		if err != nil {
			return 0, 0, err
		}
		return n, n, nil
	}
}

func parseEpisodeToken(tok string) (int, error) {
	tok = strings.TrimSpace(tok)
	if !strings.HasPrefix(tok, "e") {
		return 0, fmt.Errorf("token %q must start with 'e'", tok)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, fmt.Errorf("token %q: %w", tok, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("token %q: episode numbers must be positive", tok)
	}
	return n, nil
}

// ResolveOpenEnded re-parses an expression that may contain an open-high
// segment ("eN-") against a known season/media episode count, producing a
// closed range. Call this once the episode count is known; ParseEpisodeRange
// rejects open-high segments outright because their meaning depends on it.
func ResolveOpenEnded(expr string, episodeCount int) (EpisodeRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "e0" {
		return ParseEpisodeRange(expr)
	}
	set := make(map[int]struct{})
	for _, segment := range strings.Split(expr, "|") {
		segment = strings.TrimSpace(segment)
		lo, hi, err := parseSegment(segment)
		if err != nil {
			return EpisodeRange{}, fmt.Errorf("episode range %q: %w", expr, err)
		}
		if hi == openEnded {
			hi = episodeCount
		}
		if hi < lo {
			return EpisodeRange{}, fmt.Errorf("episode range %q: reversed range %d-%d", expr, lo, hi)
		}
		for n := lo; n <= hi; n++ {
			set[n] = struct{}{}
		}
	}
	return newEpisodeRange(set), nil
}

func newEpisodeRange(set map[int]struct{}) EpisodeRange {
	ordered := make([]int, 0, len(set))
	for n := range set {
		ordered = append(ordered, n)
	}
	sort.Ints(ordered)
	return EpisodeRange{episodes: set, ordered: ordered}
}

// IsSpecials reports whether this range is the "e0" specials sentinel.
func (r EpisodeRange) IsSpecials() bool { return r.specials }

// Contains reports whether episode n is in the range.
func (r EpisodeRange) Contains(n int) bool {
	_, ok := r.episodes[n]
	return ok
}

// Len returns the number of distinct episodes in the range.
func (r EpisodeRange) Len() int { return len(r.episodes) }

// Episodes returns the sorted, de-duplicated episode numbers.
func (r EpisodeRange) Episodes() []int {
	out := make([]int, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Intersect returns the episodes present in both ranges, as a sorted slice.
func (r EpisodeRange) Intersect(other EpisodeRange) []int {
	var out []int
	small, big := r, other
	if len(small.episodes) > len(big.episodes) {
		small, big = big, small
	}
	for n := range small.episodes {
		if _, ok := big.episodes[n]; ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// LongestPrefixOverlap returns how many leading (lowest) episodes of
// other are also present in r, used to break ties between overlapping
// season-range mapping entries.
func (r EpisodeRange) LongestPrefixOverlap(other EpisodeRange) int {
	n := 0
	for _, ep := range other.Episodes() {
		if !r.Contains(ep) {
			break
		}
		n++
	}
	return n
}

func (r EpisodeRange) String() string {
	if r.specials {
		return "e0"
	}
	if len(r.ordered) == 0 {
		return ""
	}
	var b strings.Builder
	start := r.ordered[0]
	prev := start
	writeSeg := func(lo, hi int) {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		if lo == hi {
			fmt.Fprintf(&b, "e%d", lo)
		} else {
			fmt.Fprintf(&b, "e%d-e%d", lo, hi)
		}
	}
	for _, n := range r.ordered[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		writeSeg(start, prev)
		start, prev = n, n
	}
	writeSeg(start, prev)
	return b.String()
}
