package docstore

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "what": {},
	"with": {}, "you": {}, "your": {},
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit, dropping stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func termFrequencies(text string) map[string]int {
	terms := make(map[string]int)
	for _, t := range tokenize(text) {
		terms[t]++
	}
	return terms
}

func norm(terms map[string]int) float64 {
	var sum float64
	for _, n := range terms {
		sum += float64(n * n)
	}
	return math.Sqrt(sum)
}

// cosine is the cosine similarity of two term-frequency vectors.
func cosine(q map[string]int, qNorm float64, r record) float64 {
	if qNorm == 0 || r.Norm == 0 {
		return 0
	}
	var dot float64
	for term, n := range q {
		dot += float64(n * r.Terms[term])
	}
	return dot / (qNorm * r.Norm)
}

// ranker accumulates the best matches of one query.
type ranker struct {
	terms   map[string]int
	norm    float64
	source  string
	results []SearchResult
}

func newRanker(query, source string) *ranker {
	terms := termFrequencies(query)
	return &ranker{terms: terms, norm: norm(terms), source: source}
}

func (r *ranker) empty() bool {
	return len(r.terms) == 0
}

func (r *ranker) consider(id string, rec record) {
	if r.source != "" && rec.Document.Source != r.source {
		return
	}
	if score := cosine(r.terms, r.norm, rec); score > 0 {
		r.results = append(r.results, SearchResult{ID: id, Document: rec.Document, Score: score})
	}
}

// top returns results by descending score, ties broken by URL.
func (r *ranker) top(limit int) []SearchResult {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	sort.Slice(r.results, func(i, j int) bool {
		if r.results[i].Score != r.results[j].Score {
			return r.results[i].Score > r.results[j].Score
		}
		return r.results[i].Document.URL < r.results[j].Document.URL
	})
	if len(r.results) > limit {
		r.results = r.results[:limit]
	}
	if r.results == nil {
		return []SearchResult{}
	}
	return r.results
}
