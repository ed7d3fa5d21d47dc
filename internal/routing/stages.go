package routing

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/dativo-io/nexus/internal/confidence"
	"github.com/dativo-io/nexus/internal/lexical"
	"github.com/dativo-io/nexus/internal/tenant"
)

// Stage inspects a message against the intent catalog and returns a
// decision, or nil to pass to the next stage. Stages are pure.
type Stage func(message string, intents []tenant.Intent) *Decision

// FallbackIntent is preferred by the fallback stage when declared.
const FallbackIntent = "fallback"

// DefaultStages is the cascade order.
var DefaultStages = []Stage{KeywordStage, LexicalStage, FallbackStage}

var (
	matcherMu    sync.RWMutex
	matcherCache = make(map[string]*regexp.Regexp)
)

// never matches; used for keywords that are blank after trimming.
var neverMatch = regexp.MustCompile(`$^x`)

// keywordMatcher returns a cached whole-word, case-insensitive matcher.
// Word characters are letters, digits and '_'.
func keywordMatcher(keyword string) *regexp.Regexp {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	matcherMu.RLock()
	re, ok := matcherCache[kw]
	matcherMu.RUnlock()
	if ok {
		return re
	}
	if kw == "" {
		re = neverMatch
	} else {
		re = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(kw) + `(?:$|[^\p{L}\p{N}_])`)
	}
	matcherMu.Lock()
	matcherCache[kw] = re
	matcherMu.Unlock()
	return re
}

// KeywordStage scores each intent by the share of its keywords found in the
// message. The first intent with the highest non-zero score wins.
func KeywordStage(message string, intents []tenant.Intent) *Decision {
	text := strings.ToLower(message)

	var best *tenant.Intent
	var bestScore float64
	var bestMatches int
	for i := range intents {
		it := &intents[i]
		if len(it.Keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range it.Keywords {
			if keywordMatcher(kw).MatchString(text) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(it.Keywords))
		if score > bestScore {
			best, bestScore, bestMatches = it, score, matches
		}
	}
	if best == nil {
		return nil
	}

	d := baseDecision(*best, SourceKeyword)
	d.Confidence = round3(math.Min(0.95, 0.4+bestScore))
	d.Rationale = fmt.Sprintf("keyword match: %d of %d keywords for intent %q", bestMatches, len(best.Keywords), best.Name)
	return d
}

// LexicalStage scores each intent by token overlap between the message and
// the intent's examples, or its keywords when it has no examples.
func LexicalStage(message string, intents []tenant.Intent) *Decision {
	query := lexical.Tokenize(message)
	if len(query) == 0 {
		return nil
	}

	var best *tenant.Intent
	var bestOverlap float64
	for i := range intents {
		it := &intents[i]
		seeds := it.Examples
		if len(seeds) == 0 {
			seeds = it.Keywords
		}
		candidate := lexical.TokenizeAll(seeds)
		if len(candidate) == 0 {
			continue
		}
		if overlap := lexical.Overlap(query, candidate); overlap > bestOverlap {
			best, bestOverlap = it, overlap
		}
	}
	if best == nil {
		return nil
	}

	d := baseDecision(*best, SourceLexical)
	d.Confidence = confidence.Clamp(0.35 + bestOverlap)
	d.Rationale = fmt.Sprintf("lexical overlap %.3f for intent %q", bestOverlap, best.Name)
	return d
}

// FallbackStage picks the intent named "fallback", else the first declared
// intent. It returns nil only for an empty catalog.
func FallbackStage(_ string, intents []tenant.Intent) *Decision {
	if len(intents) == 0 {
		return nil
	}
	chosen := intents[0]
	for _, it := range intents {
		if it.Name == FallbackIntent {
			chosen = it
			break
		}
	}
	d := baseDecision(chosen, SourceFallback)
	d.Confidence = 0.45
	d.Rationale = "deterministic fallback decision"
	return d
}

func baseDecision(it tenant.Intent, src Source) *Decision {
	tier, err := ParseTier(it.DefaultTier)
	if err != nil {
		tier = Tier2
	}
	risk, err := ParseRiskLevel(it.RiskLevel)
	if err != nil {
		risk = RiskMedium
	}
	mode := it.GroundingMode
	if mode != GroundingStrict {
		mode = GroundingOpen
	}
	return &Decision{
		Intent:         it.Name,
		Tier:           tier,
		RiskLevel:      risk,
		Source:         src,
		GroundingMode:  mode,
		ShouldDelegate: tier == Tier3 || it.Delegate,
	}
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
