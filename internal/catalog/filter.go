package catalog

import (
	"fmt"
	"strings"

	"github.com/starford/catread/internal/models"
)

// HiddenMode selects how hidden books take part in a view.
type HiddenMode int

const (
	HiddenExclude HiddenMode = iota // default: hidden books are left out
	HiddenOnly
	HiddenInclude
)

// ParseHiddenMode maps a query value to a HiddenMode. The empty string is
// HiddenExclude.
func ParseHiddenMode(s string) (HiddenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclude", "no", "false":
		return HiddenExclude, nil
	case "only", "yes", "true":
		return HiddenOnly, nil
	case "include", "all":
		return HiddenInclude, nil
	default:
		return HiddenExclude, fmt.Errorf("catalog: unknown hidden mode %q", s)
	}
}

// Match is one filter term. Negate inverts it.
type Match struct {
	Value  string
	Negate bool
}

// ParseMatch reads a term where a leading "!" negates it.
func ParseMatch(s string) Match {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "!") {
		return Match{Value: strings.TrimSpace(s[1:]), Negate: true}
	}
	return Match{Value: s}
}

// ParseMatches parses every non-blank term.
func ParseMatches(terms []string) []Match {
	var out []Match
	for _, t := range terms {
		m := ParseMatch(t)
		if m.Value == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Filter restricts which books appear in a view. All conditions must hold.
// Authors and Titles match case-insensitive substrings, Tags match whole tags
// ignoring case.
type Filter struct {
	Hidden  HiddenMode
	Tags    []Match
	Authors []Match
	Titles  []Match
}

func (f Filter) keep(b models.Book, tags []string) bool {
	switch f.Hidden {
	case HiddenExclude:
		if b.Hidden {
			return false
		}
	case HiddenOnly:
		if !b.Hidden {
			return false
		}
	}
	for _, m := range f.Authors {
		if containsFold(b.Author, m.Value) == m.Negate {
			return false
		}
	}
	for _, m := range f.Titles {
		if containsFold(b.Title, m.Value) == m.Negate {
			return false
		}
	}
	for _, m := range f.Tags {
		if hasTag(tags, m.Value) == m.Negate {
			return false
		}
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
