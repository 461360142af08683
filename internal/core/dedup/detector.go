package dedup

import (
	"strings"
	"time"
	"unicode"
)

// Signal is the projection of a document the detector scores: everything
// else on a document is irrelevant to duplicate detection.
type Signal struct {
	Doctor     string
	Date       time.Time
	Conclusion string
	Title      string
	Fields     map[string]string
}

// Match is the detector's verdict for one existing/candidate pair.
type Match struct {
	IsDuplicate bool
	Reason      string
	Confidence  float64
}

// Thresholds for the three similarity-based signals. The doctor+day signal
// needs none: an exact hit is always confidence 0.9.
const (
	conclusionThreshold = 0.7
	fieldsThreshold     = 0.8
	titleThreshold      = 0.5

	doctorDayConfidence = 0.9
)

// Check evaluates the four signals in fixed priority order and returns the
// first qualifying one. Each rule carries its own reason and confidence;
// there is no re-ranking across rules.
func Check(existing, candidate Signal) Match {
	if sameDoctor(existing.Doctor, candidate.Doctor) && sameCalendarDay(existing.Date, candidate.Date) {
		return Match{
			IsDuplicate: true,
			Reason:      "совпадают врач и дата приёма",
			Confidence:  doctorDayConfidence,
		}
	}

	if existing.Conclusion != "" && candidate.Conclusion != "" {
		if sim := wordSetSimilarity(existing.Conclusion, candidate.Conclusion); sim >= conclusionThreshold {
			return Match{
				IsDuplicate: true,
				Reason:      "совпадает текст заключения",
				Confidence:  sim,
			}
		}
	}

	if overlap, ok := fieldOverlap(existing.Fields, candidate.Fields); ok && overlap >= fieldsThreshold {
		return Match{
			IsDuplicate: true,
			Reason:      "совпадают значения показателей",
			Confidence:  overlap,
		}
	}

	if existing.Title != "" && candidate.Title != "" {
		if sim := wordSetSimilarity(existing.Title, candidate.Title); sim >= titleThreshold {
			return Match{
				IsDuplicate: true,
				Reason:      "совпадает название документа",
				Confidence:  sim,
			}
		}
	}

	return Match{}
}

// FindFirst walks the pool in caller-supplied order and returns the index of
// the first duplicate, or -1. First match wins; no best-match search.
func FindFirst(pool []Signal, candidate Signal) (int, Match) {
	for i := range pool {
		if match := Check(pool[i], candidate); match.IsDuplicate {
			return i, match
		}
	}
	return -1, Match{}
}

func sameDoctor(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return a != "" && a == b
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// wordSetSimilarity is Jaccard similarity over lower-cased words longer than
// two runes. Short words (prepositions, initials) carry no signal.
func wordSetSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		if len([]rune(word)) > 2 {
			set[word] = struct{}{}
		}
	}
	return set
}

// fieldOverlap returns the fraction of keys present in both maps whose
// trimmed, lower-cased values are identical. ok is false when the maps share
// no keys at all.
func fieldOverlap(a, b map[string]string) (float64, bool) {
	shared, equal := 0, 0
	for key, av := range a {
		bv, ok := b[key]
		if !ok {
			continue
		}
		shared++
		if normalizeValue(av) == normalizeValue(bv) {
			equal++
		}
	}
	if shared == 0 {
		return 0, false
	}
	return float64(equal) / float64(shared), true
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
