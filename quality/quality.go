// Package quality implements the deterministic, no-I/O transcript quality
// scorer of spec.md §4.2: a referentially transparent function from
// transcript text (plus threshold config) to a QualityAssessment, used by
// the pipeline orchestrator to decide whether a transcript is worth the
// full analysis fan-out or should short-circuit to lightweight finalize.
package quality

import (
	"math"
	"strings"
	"unicode"
)

// Thresholds are the configurable gates a transcript must clear (spec.md
// §4.2 defaults).
type Thresholds struct {
	MinWordCount     int
	MinSentenceCount int
	MinCoherence     float64
	MinOverall       float64
}

// DefaultThresholds matches spec.md §4.2's stated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinWordCount:     500,
		MinSentenceCount: 10,
		MinCoherence:     0.6,
		MinOverall:       0.65,
	}
}

// Assessment is the scorer's output (spec.md §3 QualityAssessment).
type Assessment struct {
	WordCount            int
	SentenceCount        int
	AvgSentenceLength    float64
	CoherenceScore       float64
	TopicClarityScore    float64
	LanguageQualityScore float64
	OverallScore         float64
	ShouldProcessFully   bool
	BypassReason         string
	MetricsPassed        int
}

// abbreviations are excluded from sentence-boundary detection so "Dr. Smith"
// or "e.g. this" doesn't split into spurious sentences.
var abbreviations = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "jr": {},
	"vs": {}, "etc": {}, "eg": {}, "ie": {}, "inc": {}, "ltd": {}, "co": {},
	"st": {}, "no": {}, "approx": {}, "fig": {},
}

// Assess scores transcript text against thresholds. It performs no I/O and
// is referentially transparent: identical text and thresholds always
// produce a byte-identical Assessment (spec.md §4.2 Invariants).
func Assess(text string, thresholds Thresholds) Assessment {
	sentences := splitSentences(text)
	words := splitWords(text)

	wordCount := len(words)
	sentenceCount := len(sentences)
	avgSentenceLen := float64(wordCount) / float64(max(1, sentenceCount))

	coherence := coherenceScore(words, sentences)
	topicClarity := topicClarityScore(words)
	languageQuality := languageQualityScore(sentences)

	overall := 0.25*norm(float64(wordCount), 0, 2000) +
		0.15*norm(float64(sentenceCount), 0, 40) +
		0.25*coherence +
		0.2*topicClarity +
		0.15*languageQuality
	overall = clamp(overall, 0, 1)

	a := Assessment{
		WordCount:            wordCount,
		SentenceCount:        sentenceCount,
		AvgSentenceLength:    avgSentenceLen,
		CoherenceScore:       coherence,
		TopicClarityScore:    topicClarity,
		LanguageQualityScore: languageQuality,
		OverallScore:         overall,
	}

	var failing []string
	passed := 0
	if wordCount >= thresholds.MinWordCount {
		passed++
	} else {
		failing = append(failing, "too_few_words")
	}
	if sentenceCount >= thresholds.MinSentenceCount {
		passed++
	} else {
		failing = append(failing, "too_few_sentences")
	}
	if coherence >= thresholds.MinCoherence {
		passed++
	} else {
		failing = append(failing, "min_coherence")
	}
	if overall >= thresholds.MinOverall {
		passed++
	} else {
		failing = append(failing, "min_overall")
	}

	a.MetricsPassed = passed
	a.ShouldProcessFully = passed >= 3
	if len(failing) > 0 {
		a.BypassReason = strings.Join(failing, ",")
	}
	return a
}

// splitSentences tokenizes on '.', '!', '?' boundaries, treating a
// boundary as spurious when it immediately follows a known abbreviation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	words := strings.Fields(text)
	for i := 0; i < len(words); i++ {
		word := words[i]
		current.WriteString(word)
		if i < len(words)-1 {
			current.WriteByte(' ')
		}

		trimmed := strings.TrimRight(word, ".!?")
		if trimmed == word {
			continue // no terminal punctuation on this token
		}
		lastWord := strings.ToLower(strings.Trim(trimmed, "\"'()[]"))
		lastWord = strings.ReplaceAll(lastWord, ".", "") // "e.g" -> "eg"
		if _, isAbbrev := abbreviations[lastWord]; isAbbrev {
			continue
		}
		sentence := strings.TrimSpace(current.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}
	if remainder := strings.TrimSpace(current.String()); remainder != "" {
		sentences = append(sentences, remainder)
	}
	return sentences
}

// splitWords tokenizes on whitespace after stripping surrounding
// punctuation from each token.
func splitWords(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		stripped := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r)
		})
		if stripped != "" {
			words = append(words, stripped)
		}
	}
	return words
}

func sentenceWordLengths(sentences []string) []float64 {
	lens := make([]float64, len(sentences))
	for i, s := range sentences {
		lens[i] = float64(len(strings.Fields(s)))
	}
	return lens
}

// coherenceScore combines lexical diversity and sentence-length
// consistency, weighted 0.5/0.5 (spec.md §4.2).
func coherenceScore(words, sentences []string) float64 {
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}
	lexicalDiversity := float64(len(unique)) / float64(len(words))

	lens := sentenceWordLengths(sentences)
	mean, stdev := meanStdev(lens)
	var consistency float64
	if mean == 0 {
		consistency = 0
	} else {
		consistency = 1 - clamp(stdev/mean, 0, 1)
	}

	return clamp(0.5*lexicalDiversity+0.5*consistency, 0, 1)
}

// stopWords are excluded from topic_clarity's content-word frequency mass
// so function words don't dominate the top-5 ranking.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "is": {},
	"are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "to": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "for": {}, "with": {}, "as": {}, "by": {},
	"that": {}, "this": {}, "it": {}, "from": {}, "you": {}, "i": {}, "we": {},
}

// topicClarityScore is the ratio of top-5 content-word frequency mass to
// total content-word mass (spec.md §4.2), normalized to [0,1] by
// definition (a ratio of sums of non-negative counts).
func topicClarityScore(words []string) float64 {
	freq := make(map[string]int)
	total := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		if _, stop := stopWords[lw]; stop {
			continue
		}
		freq[lw]++
		total++
	}
	if total == 0 {
		return 0
	}

	counts := make([]int, 0, len(freq))
	for _, c := range freq {
		counts = append(counts, c)
	}
	sortDescInt(counts)

	top := 0
	for i := 0; i < len(counts) && i < 5; i++ {
		top += counts[i]
	}
	return clamp(float64(top)/float64(total), 0, 1)
}

// languageQualityScore is the fraction of sentences with length in
// [5, 40] words (spec.md §4.2).
func languageQualityScore(sentences []string) float64 {
	if len(sentences) == 0 {
		return 0
	}
	inRange := 0
	for _, s := range sentences {
		n := len(strings.Fields(s))
		if n >= 5 && n <= 40 {
			inRange++
		}
	}
	return float64(inRange) / float64(len(sentences))
}

func meanStdev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

func norm(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return clamp((v-lo)/(hi-lo), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sortDescInt(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] < xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
