// Package normalize converts scraped text into canonical ranking values.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// CleanText collapses whitespace runs to single spaces and trims the ends.
func CleanText(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Clamp bounds v to the canonical score range.
func Clamp(v float64) float64 {
	return math.Max(0, math.Min(ranking.MaxScore, v))
}

// Score parses a scraped score. Only digits and one decimal point are kept,
// plus a leading minus sign. The result is clamped to [0, 100]; nil means the
// text carried no number or more than one decimal point.
func Score(raw string) *float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var b strings.Builder
	seenDot := false
	for i, r := range trimmed {
		switch {
		case r == '-' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.':
			if seenDot {
				return nil
			}
			seenDot = true
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	v = Clamp(v)
	return &v
}

// ScoreValue normalizes a score that may already be numeric.
func ScoreValue(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil
	case string:
		return Score(n)
	case *float64:
		if n == nil {
			return nil
		}
		f = *n
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = Clamp(f)
	return &f
}

// Rank parses a displayed rank. Ranges such as "101-110" resolve to their
// lower bound; anything without digits yields ranking.UnknownRank.
func Rank(raw string) int {
	text := CleanText(raw)
	if i := strings.IndexAny(text, "-–—"); i >= 0 {
		text = text[:i]
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return ranking.UnknownRank
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return ranking.UnknownRank
	}
	return n
}

// PositionalRank returns the rank shown in raw after removing strip
// characters when what remains is all digits, otherwise the 1-based list
// position.
func PositionalRank(raw, strip string, position int) int {
	text := strings.TrimSpace(raw)
	for _, r := range strip {
		text = strings.ReplaceAll(text, string(r), "")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return position
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return position
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 {
		return position
	}
	return n
}

type gradeValue struct {
	grade string
	score float64
}

var gradeTable = []gradeValue{
	{"A+", 98}, {"A", 95}, {"A-", 92},
	{"B+", 88}, {"B", 85}, {"B-", 82},
	{"C+", 78}, {"C", 75}, {"C-", 72},
	{"D+", 68}, {"D", 65}, {"D-", 62},
	{"F", 50},
}

// Grade maps a letter grade to a numeric score; unmapped text yields nil.
// The first grade token in the cleaned, upper-cased text wins. A bare letter
// needs a separator on both sides, so words such as "EXCELLENT" never match.
// A qualified grade may follow other letters ("GRADEA+") and may run into a
// word when nothing precedes it ("A+OVERALL"). "/" joins like a letter, which
// keeps "N/A" unmapped.
func Grade(raw string) *float64 {
	text := strings.ToUpper(CleanText(raw))
	text = strings.NewReplacer("−", "-", "–", "-").Replace(text)
	token := gradeToken([]rune(text))
	if token == "" {
		return nil
	}
	for _, g := range gradeTable {
		if g.grade == token {
			v := g.score
			return &v
		}
	}
	return nil
}

func gradeToken(text []rune) string {
	at := func(i int) rune {
		if i < 0 || i >= len(text) {
			return ' '
		}
		return text[i]
	}
	for i, r := range text {
		if !strings.ContainsRune("ABCDF", r) {
			continue
		}
		attached := joinsGrade(at(i - 1))
		if mod := at(i + 1); mod == '+' || mod == '-' {
			if !attached || !joinsGrade(at(i+2)) {
				return string([]rune{r, mod})
			}
			continue
		}
		if !attached && !joinsGrade(at(i+1)) {
			return string(r)
		}
	}
	return ""
}

func joinsGrade(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/'
}
