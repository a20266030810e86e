// Heuristic is the always-available fallback SimilarityProvider/SopRanker
// (§4.3): when AIConfig.ProviderAPIKey is unset there is no external
// vendor to call, so enrichment falls back to a local keyword-overlap
// comparator rather than leaving every gap stuck in PendingAI.
package aienricher

import (
	"context"
	"sort"
	"strings"

	"github.com/gapopshub/api/internal/models"
)

// Heuristic scores gap similarity and ranks SOPs by Jaccard overlap of
// their tokenized title+description against a stopword-stripped word set.
// It has no external dependencies and never errors.
type Heuristic struct{}

// NewHeuristic builds the fallback provider.
func NewHeuristic() *Heuristic { return &Heuristic{} }

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "is": true, "was": true,
	"were": true, "be": true, "been": true, "with": true, "that": true,
	"this": true, "it": true, "at": true, "by": true, "from": true, "as": true,
}

func tokenize(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

func gapTokens(g *models.Gap) map[string]bool {
	return tokenize(g.Title + " " + g.Description)
}

func jaccard(a, b map[string]bool) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return intersection * 100 / union
}

// Score implements SimilarityProvider as the Jaccard index of the two
// gaps' tokenized title+description, scaled to 0-100.
func (Heuristic) Score(_ context.Context, a, b *models.Gap) (int, error) {
	return jaccard(gapTokens(a), gapTokens(b)), nil
}

// RankSops implements SopRanker: each SOP's title is tokenized the same
// way and scored against the gap; the catalog is returned most-relevant
// first with a plain-English reasoning string, zero-score SOPs dropped.
func (Heuristic) RankSops(_ context.Context, gap *models.Gap, sops []models.Sop) ([]models.SopSuggestion, error) {
	gapSet := gapTokens(gap)

	suggestions := make([]models.SopSuggestion, 0, len(sops))
	for _, sop := range sops {
		score := jaccard(gapSet, tokenize(sop.Title))
		if score <= 0 {
			continue
		}
		suggestions = append(suggestions, models.SopSuggestion{
			SopID:     sop.ID,
			Score:     score,
			Reasoning: "keyword overlap with gap title and description",
		})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	return suggestions, nil
}
