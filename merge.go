package aicontext

import (
	"sort"
	"strings"
	"time"

	"github.com/creastat/aicontext/record"
)

// Delta is newly extracted business context produced by a generation result.
type Delta struct {
	// ExtractedPreferences are merged key by key, see MergePreferences.
	// A string "lastSentiment" of positive, negative or neutral also bumps
	// the matching sentiment counter.
	ExtractedPreferences map[string]record.Value
	LearnedPatterns      []PatternInput
}

// PatternInput is a pattern observation to fold into the learned patterns.
type PatternInput struct {
	Pattern string
	Context string
}

// Empty reports whether applying d would change nothing.
func (d Delta) Empty() bool {
	return len(d.ExtractedPreferences) == 0 && len(d.LearnedPatterns) == 0
}

// Strategy names how an incoming preference value combines with the stored one.
type Strategy int

const (
	// Overwrite replaces the stored value (last write wins).
	Overwrite Strategy = iota
	// AppendDedupeCap unions sequences, keeps the last occurrence of equal
	// values and retains the newest record.MaxPreferenceItems entries.
	AppendDedupeCap
	// Accumulate adds numbers.
	Accumulate
)

func (s Strategy) String() string {
	switch s {
	case AppendDedupeCap:
		return "append-dedupe-cap"
	case Accumulate:
		return "accumulate"
	default:
		return "overwrite"
	}
}

const (
	sentimentScoreKey = "sentimentScore"
	lastSentimentKey  = "lastSentiment"
)

// preferenceStrategies pins keys to a strategy. Keys not listed fall back
// to AppendDedupeCap for sequences and Overwrite for everything else.
var preferenceStrategies = map[string]Strategy{
	sentimentScoreKey: Accumulate,
}

// StrategyFor returns the strategy applied when incoming is merged under key.
// A sequence always merges as a sequence, whatever the key.
func StrategyFor(key string, incoming record.Value) Strategy {
	if incoming.Kind() == record.KindList {
		return AppendDedupeCap
	}
	if s, ok := preferenceStrategies[key]; ok {
		return s
	}
	return Overwrite
}

// MergePreferences folds incoming into prefs in place and returns prefs
// (allocated when nil).
func MergePreferences(prefs, incoming map[string]record.Value) map[string]record.Value {
	if prefs == nil {
		prefs = make(map[string]record.Value, len(incoming))
	}
	for key, value := range incoming {
		switch StrategyFor(key, value) {
		case AppendDedupeCap:
			items, _ := value.AsList()
			prefs[key] = appendDedupeCap(prefs[key], items, record.MaxPreferenceItems)
		case Accumulate:
			prefs[key] = accumulate(prefs[key], value)
		default:
			prefs[key] = value.Clone()
		}
	}
	return prefs
}

func appendDedupeCap(existing record.Value, incoming []record.Value, limit int) record.Value {
	var items []record.Value
	switch existing.Kind() {
	case record.KindList:
		stored, _ := existing.AsList()
		items = append(items, stored...)
	case record.KindNull:
	default:
		// A scalar stored before the key became a list is kept as its first element.
		items = append(items, existing)
	}
	items = append(items, incoming...)

	out := make([]record.Value, 0, len(items))
	for i, v := range items {
		if containsValue(items[i+1:], v) {
			continue
		}
		out = append(out, v.Clone())
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return record.ListValue(out...)
}

func containsValue(items []record.Value, v record.Value) bool {
	for _, item := range items {
		if item.Equal(v) {
			return true
		}
	}
	return false
}

// accumulate adds a numeric incoming value to the stored one; a stored
// non-number counts as zero. Non-numeric incoming values overwrite.
func accumulate(existing, incoming record.Value) record.Value {
	in, ok := incoming.AsNumber()
	if !ok {
		return incoming.Clone()
	}
	cur, _ := existing.AsNumber()
	return record.NumberValue(cur + in)
}

// ApplySentiment bumps the counter named by a lastSentiment preference.
// It reports whether a counter changed.
func ApplySentiment(sa *record.SentimentAnalysis, incoming map[string]record.Value, now time.Time) bool {
	sentiment, ok := incoming[lastSentimentKey].AsString()
	if !ok {
		return false
	}
	switch record.Mood(sentiment) {
	case record.MoodPositive:
		sa.Positive++
	case record.MoodNegative:
		sa.Negative++
	case record.MoodNeutral:
		sa.Neutral++
	default:
		return false
	}
	sa.LastUpdated = now
	return true
}

// MergePatterns folds observations into patterns, stamping them at now, and
// prunes the result to record.MaxPatterns entries.
func MergePatterns(patterns []record.Pattern, incoming []PatternInput, now time.Time) []record.Pattern {
	for _, in := range incoming {
		if in.Pattern == "" {
			continue
		}
		i := indexPattern(patterns, in.Pattern)
		if i < 0 {
			patterns = append(patterns, record.Pattern{
				Pattern:   in.Pattern,
				Frequency: 1,
				LastSeen:  now,
				Context:   lastRunes(in.Context, record.MaxPatternContext),
			})
			continue
		}

		p := &patterns[i]
		p.Frequency++
		p.LastSeen = now
		if in.Context != "" && !strings.Contains(p.Context, in.Context) {
			joined := in.Context
			if p.Context != "" {
				joined = p.Context + "; " + in.Context
			}
			p.Context = lastRunes(joined, record.MaxPatternContext)
		}
	}
	return prunePatterns(patterns, record.MaxPatterns)
}

// prunePatterns keeps the limit most recently seen patterns. Among equal
// LastSeen values the later entry wins. Survivors keep their relative order.
func prunePatterns(patterns []record.Pattern, limit int) []record.Pattern {
	if len(patterns) <= limit {
		return patterns
	}

	order := make([]int, len(patterns))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := patterns[order[a]], patterns[order[b]]
		if !pa.LastSeen.Equal(pb.LastSeen) {
			return pa.LastSeen.After(pb.LastSeen)
		}
		return order[a] > order[b]
	})

	keep := make([]bool, len(patterns))
	for _, i := range order[:limit] {
		keep[i] = true
	}
	out := make([]record.Pattern, 0, limit)
	for i, p := range patterns {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func indexPattern(patterns []record.Pattern, text string) int {
	for i := range patterns {
		if patterns[i].Pattern == text {
			return i
		}
	}
	return -1
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// mergeBusinessContext applies d to bc. It reports whether anything changed.
func mergeBusinessContext(bc *record.BusinessContext, d Delta, now time.Time) bool {
	if d.Empty() {
		return false
	}
	if len(d.ExtractedPreferences) > 0 {
		bc.ExtractedPreferences = MergePreferences(bc.ExtractedPreferences, d.ExtractedPreferences)
		ApplySentiment(&bc.CustomerInsights.SentimentAnalysis, d.ExtractedPreferences, now)
	}
	if len(d.LearnedPatterns) > 0 {
		bc.LearnedPatterns = MergePatterns(bc.LearnedPatterns, d.LearnedPatterns, now)
	}
	return true
}
