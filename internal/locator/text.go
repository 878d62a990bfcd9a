// Package locator resolves a textual or visual target description to screen
// coordinates through an ordered cascade of perception capabilities.
package locator

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/xiaot623/deskdriver/internal/driver"
)

const (
	highConfidence   = 0.90
	mediumConfidence = 0.75
	highFuzzyFloor   = 0.88
	mediumFuzzyFloor = 0.72
)

// TextCandidate is one scored text box.
type TextCandidate struct {
	Box    driver.TextBox `json:"box"`
	Score  float64        `json:"score"`
	Method string         `json:"method"`
}

// scoreText computes the composite similarity of a query against one detected
// text region: a levenshtein ratio plus bonuses for exact, substring, prefix
// and suffix matches, a CJK bonus, and a normalized OCR-confidence bonus.
func scoreText(query, text string, confidence float64) (float64, string) {
	q := strings.ToLower(strings.TrimSpace(query))
	t := strings.ToLower(strings.TrimSpace(text))
	if q == "" || t == "" {
		return 0, "low"
	}

	maxLen := len([]rune(q))
	if l := len([]rune(t)); l > maxLen {
		maxLen = l
	}
	dist := levenshtein.ComputeDistance(q, t)
	ratio := 1.0 - float64(dist)/float64(maxLen)

	exact := q == t
	substring := !exact && (strings.Contains(t, q) || strings.Contains(q, t))
	score := ratio
	switch {
	case exact:
		score += 0.4
	case substring:
		score += 0.25
	case strings.HasPrefix(t, q):
		score += 0.15
	case strings.HasSuffix(t, q):
		score += 0.1
	}
	if hasCJK(q) && (exact || substring) {
		score += 0.2
	}
	if confidence > 0 {
		score += confidence / 100 * 0.1
	}
	if score > 1.0 {
		score = 1.0
	}

	switch {
	case exact:
		return score, "exact"
	case substring:
		return score, "substring"
	case score >= highFuzzyFloor:
		return score, "high_fuzzy"
	case score >= mediumFuzzyFloor:
		return score, "medium_fuzzy"
	default:
		return score, "low"
	}
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// mergeBoxes deduplicates detected text regions: identical text whose bounds
// overlap keep only the higher-confidence box.
func mergeBoxes(boxes []driver.TextBox) []driver.TextBox {
	var out []driver.TextBox
	for _, b := range boxes {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		dup := false
		for i, kept := range out {
			if strings.EqualFold(strings.TrimSpace(kept.Text), strings.TrimSpace(b.Text)) && overlaps(kept.Bounds, b.Bounds) {
				if b.Confidence > kept.Confidence {
					out[i] = b
				}
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, b)
		}
	}
	return out
}

func overlaps(a, b driver.Rect) bool {
	return a.Left < b.Right && b.Left < a.Right && a.Top < b.Bottom && b.Top < a.Bottom
}

// matchText scores every deduplicated box against the query and returns the
// candidates best first.
func matchText(query string, boxes []driver.TextBox) []TextCandidate {
	merged := mergeBoxes(boxes)
	cands := make([]TextCandidate, 0, len(merged))
	for _, b := range merged {
		score, method := scoreText(query, b.Text, b.Confidence)
		cands = append(cands, TextCandidate{Box: b, Score: score, Method: method})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		ri, rj := methodRank(cands[i].Method), methodRank(cands[j].Method)
		if ri != rj {
			return ri > rj
		}
		return cands[i].Score > cands[j].Score
	})
	return cands
}

// methodRank orders match methods so an exact hit always outranks a
// substring or fuzzy one, even when their composite scores tie.
func methodRank(method string) int {
	switch method {
	case "exact":
		return 4
	case "substring":
		return 3
	case "high_fuzzy":
		return 2
	case "medium_fuzzy":
		return 1
	default:
		return 0
	}
}
