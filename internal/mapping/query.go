package mapping

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"plexanibridge/internal/domain"
)

// Query is a parsed Booru-style search expression: AND by juxtaposition,
// OR via `|` infix or a `~`-prefixed group, NOT via a `-` prefix,
// grouping via parentheses, field operators (`field:value`,
// `field:>n`, `field:n..m`, `field:*wild?card`, `has:field`), and a
// free-text term matched fuzzily against titles.
type Query struct {
	root node
}

// ParseQuery parses expr into a Query ready for Eval.
func ParseQuery(expr string) (*Query, error) {
	p := &parser{tokens: tokenize(expr)}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("mapping query: unexpected token %q", p.tokens[p.pos])
	}
	return &Query{root: n}, nil
}

// Eval reports whether m satisfies the query.
func (q *Query) Eval(m domain.Mapping) bool {
	if q.root == nil {
		return true
	}
	return q.root.eval(m)
}

// FieldCapabilities lists the field operators the engine understands,
// so a UI can autocomplete without hardcoding the schema.
func FieldCapabilities() []string {
	return []string{
		"anilist_id", "anidb_id", "tvdb_id", "tmdb_movie_id", "tmdb_show_id",
		"imdb_id", "mal_id", "year", "custom", "source", "title",
	}
}

// --- AST ---

type node interface {
	eval(m domain.Mapping) bool
}

type andNode struct{ children []node }

func (n andNode) eval(m domain.Mapping) bool {
	for _, c := range n.children {
		if !c.eval(m) {
			return false
		}
	}
	return true
}

type orNode struct{ children []node }

func (n orNode) eval(m domain.Mapping) bool {
	for _, c := range n.children {
		if c.eval(m) {
			return true
		}
	}
	return len(n.children) == 0
}

type notNode struct{ child node }

func (n notNode) eval(m domain.Mapping) bool { return !n.child.eval(m) }

type fieldNode struct {
	field string
	op    string // "eq", "gt", "lt", "range", "wild", "has"
	value string
	lo    string
	hi    string
}

func (n fieldNode) eval(m domain.Mapping) bool {
	switch n.op {
	case "has":
		return fieldPresent(m, n.field)
	case "wild":
		return matchWildcard(n.value, fieldString(m, n.field))
	case "range":
		v := fieldInt(m, n.field)
		lo, _ := strconv.Atoi(n.lo)
		hi, _ := strconv.Atoi(n.hi)
		return v >= lo && v <= hi
	case "gt":
		v := fieldInt(m, n.field)
		bound, _ := strconv.Atoi(n.value)
		return v > bound
	case "lt":
		v := fieldInt(m, n.field)
		bound, _ := strconv.Atoi(n.value)
		return v < bound
	default: // eq
		return fieldEquals(m, n.field, n.value)
	}
}

type freeTextNode struct{ term string }

func (n freeTextNode) eval(m domain.Mapping) bool {
	// Case-insensitive fuzzy subsequence match against the title, the
	// shape github.com/lithammer/fuzzysearch is actually built for
	// (type-ahead style matching), unlike the full-string similarity
	// ratio the resolver's fuzzy fallback needs.
	return fuzzy.MatchFold(n.term, m.Title)
}

// --- field accessors ---

func fieldPresent(m domain.Mapping, field string) bool {
	switch field {
	case "anidb_id":
		return m.AniDBID != nil
	case "tvdb_id":
		return m.TVDBID != nil
	case "tmdb_movie_id":
		return len(m.TMDBMovieIDs) > 0
	case "tmdb_show_id":
		return len(m.TMDBShowIDs) > 0
	case "imdb_id":
		return len(m.IMDBIDs) > 0
	case "mal_id":
		return len(m.MALIDs) > 0
	default:
		return false
	}
}

func fieldString(m domain.Mapping, field string) string {
	switch field {
	case "title":
		return m.Title
	case "source":
		return strings.Join(m.Sources, ",")
	default:
		return ""
	}
}

func fieldInt(m domain.Mapping, field string) int {
	switch field {
	case "anilist_id":
		return m.AniListID
	case "year":
		return m.Year
	case "anidb_id":
		if m.AniDBID != nil {
			return *m.AniDBID
		}
	case "tvdb_id":
		if m.TVDBID != nil {
			return *m.TVDBID
		}
	}
	return 0
}

func fieldEquals(m domain.Mapping, field, value string) bool {
	switch field {
	case "custom":
		b, _ := strconv.ParseBool(value)
		return m.Custom == b
	case "title":
		return strings.EqualFold(m.Title, value)
	case "source":
		for _, s := range m.Sources {
			if strings.EqualFold(s, value) {
				return true
			}
		}
		return false
	case "imdb_id":
		for _, id := range m.IMDBIDs {
			if id == value {
				return true
			}
		}
		return false
	default:
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		return fieldInt(m, field) == n
	}
}

func matchWildcard(pattern, value string) bool {
	pattern = strings.ReplaceAll(pattern, "?", "*")
	ok, _ := filepath.Match(strings.ToLower(pattern), strings.ToLower(value))
	return ok
}

// --- tokenizer + parser ---

func tokenize(expr string) []string {
	var tokens []string
	var buf strings.Builder
	inQuotes := false

	flush := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}

	for _, r := range expr {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
			buf.WriteRune(r)
		case r == '(' || r == ')' || r == '|':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	nodes := []node{left}
	for p.peek() == "|" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, right)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return orNode{children: nodes}, nil
}

func (p *parser) parseAnd() (node, error) {
	var nodes []node
	for {
		tok := p.peek()
		if tok == "" || tok == "|" || tok == ")" {
			break
		}
		n, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("mapping query: empty expression")
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return andNode{children: nodes}, nil
}

func (p *parser) parseTerm() (node, error) {
	tok := p.tokens[p.pos]

	if tok == "(" {
		p.pos++
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("mapping query: unclosed group")
		}
		p.pos++
		return n, nil
	}

	if strings.HasPrefix(tok, "~(") {
		// `~(` is treated as an alias for `-(`; the grammar gives it no
		// distinct semantic of its own.
		p.tokens[p.pos] = "-" + tok[1:]
		return p.parseTerm()
	}

	if strings.HasPrefix(tok, "-") && tok != "-" {
		p.tokens[p.pos] = tok[1:]
		child, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
	}

	p.pos++
	return parseAtom(tok)
}

func parseAtom(tok string) (node, error) {
	if idx := strings.Index(tok, ":"); idx > 0 {
		field := tok[:idx]
		value := tok[idx+1:]

		if field == "has" {
			return fieldNode{field: value, op: "has"}, nil
		}
		if strings.Contains(value, "..") {
			parts := strings.SplitN(value, "..", 2)
			return fieldNode{field: field, op: "range", lo: parts[0], hi: parts[1]}, nil
		}
		if strings.HasPrefix(value, ">") {
			return fieldNode{field: field, op: "gt", value: value[1:]}, nil
		}
		if strings.HasPrefix(value, "<") {
			return fieldNode{field: field, op: "lt", value: value[1:]}, nil
		}
		if strings.ContainsAny(value, "*?") {
			return fieldNode{field: field, op: "wild", value: value}, nil
		}
		return fieldNode{field: field, op: "eq", value: value}, nil
	}
	return freeTextNode{term: tok}, nil
}
