package wizard

import (
	"fmt"
	"regexp"
	"strings"

	"listing-wizard/internal/domain"
)

const (
	qualityPassScore     = 5
	minFactRatio         = 0.5
	minParagraphs        = 3
	maxAvgSentenceWords  = 25
	minQuestionOverlapPc = 50
)

var (
	numberPattern   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	sentencePattern = regexp.MustCompile(`[.!?]+(?:\s|$)`)
	paragraphSplit  = regexp.MustCompile(`\n\s*\n`)
)

var overclaimTerms = []string{
	"guaranteed",
	"guarantee",
	"unbeatable",
	"once in a lifetime",
	"flawless",
	"risk free",
	"best in the world",
	"absolutely perfect",
	"gegarandeerd",
	"onverslaanbaar",
}

var callsToAction = map[domain.Transaction][]string{
	domain.TransactionSale: {
		"schedule a viewing", "book a viewing", "arrange a viewing", "make an offer",
		"contact", "call", "get in touch", "visit", "bezichtiging", "neem contact", "bel",
	},
	domain.TransactionRent: {
		"schedule a viewing", "book a viewing", "arrange a viewing", "apply",
		"contact", "call", "get in touch", "reserve", "bezichtiging", "neem contact", "bel", "reageer",
	},
}

// CheckQuality runs the six rule-based checks over listing. The report is
// advisory and never blocks completion.
func CheckQuality(listing string, d domain.CollectedData) domain.QualityReport {
	checks := []domain.QualityCheck{
		checkAudience(listing, d),
		checkFacts(listing, d),
		checkQuestionOverlap(listing, d),
		checkStructure(listing),
		checkOverclaims(listing),
		checkCallToAction(listing, d),
	}
	score := 0
	for _, c := range checks {
		if c.Passed {
			score++
		}
	}
	return domain.QualityReport{Checks: checks, Score: score, Passed: score >= qualityPassScore}
}

func checkAudience(listing string, d domain.CollectedData) domain.QualityCheck {
	c := domain.QualityCheck{Name: "audience_keywords"}
	kws := keywords(d.TargetAudience)
	if len(kws) == 0 {
		c.Passed = true
		c.Explanation = "no audience keywords to look for"
		return c
	}
	present := wordSet(listing)
	for _, kw := range kws {
		if _, ok := present[kw]; ok {
			c.Passed = true
			c.Explanation = fmt.Sprintf("mentions the audience (%q)", kw)
			return c
		}
	}
	c.Explanation = fmt.Sprintf("none of %s appear in the listing", strings.Join(kws, ", "))
	return c
}

func checkFacts(listing string, d domain.CollectedData) domain.QualityCheck {
	c := domain.QualityCheck{Name: "factual_terms"}
	present := wordSet(listing)
	total, echoed := 0, 0
	var missing []string

	for _, n := range numberPattern.FindAllString(d.BasicFeatures, -1) {
		total++
		if strings.Contains(listing, n) {
			echoed++
		} else {
			missing = append(missing, n)
		}
	}
	for _, h := range d.Highlights {
		total++
		if containsPhrase(listing, h) || coverage(keywords(h), present) >= 1 {
			echoed++
		} else {
			missing = append(missing, h)
		}
	}
	if kws := keywords(d.UniqueDetail); len(kws) > 0 {
		total++
		if coverage(kws, present) >= 0.5 {
			echoed++
		} else {
			missing = append(missing, "unique detail")
		}
	}

	if total == 0 {
		c.Passed = true
		c.Explanation = "no facts to check"
		return c
	}
	ratio := float64(echoed) / float64(total)
	c.Passed = ratio >= minFactRatio
	c.Explanation = fmt.Sprintf("%d of %d facts echoed", echoed, total)
	if len(missing) > 0 {
		c.Explanation += "; missing: " + strings.Join(missing, ", ")
	}
	return c
}

func checkQuestionOverlap(listing string, d domain.CollectedData) domain.QualityCheck {
	c := domain.QualityCheck{Name: "question_overlap"}
	if len(d.Questions) == 0 {
		c.Passed = true
		c.Explanation = "no questions to compare"
		return c
	}
	present := wordSet(listing)
	covered := 0
	for _, q := range d.Questions {
		if coverage(keywords(q), present) > 0 {
			covered++
		}
	}
	c.Passed = covered*100 >= len(d.Questions)*minQuestionOverlapPc
	c.Explanation = fmt.Sprintf("%d of %d questions addressed", covered, len(d.Questions))
	return c
}

func checkStructure(listing string) domain.QualityCheck {
	c := domain.QualityCheck{Name: "structure"}
	paragraphs := 0
	for _, p := range paragraphSplit.Split(strings.TrimSpace(listing), -1) {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	sentences := 0
	for _, s := range sentenceSplit(listing) {
		if len(words(s)) > 0 {
			sentences++
		}
	}
	avg := 0.0
	if sentences > 0 {
		avg = float64(len(words(listing))) / float64(sentences)
	}
	c.Passed = paragraphs >= minParagraphs && sentences > 0 && avg <= maxAvgSentenceWords
	c.Explanation = fmt.Sprintf("%d paragraphs, %.1f words per sentence", paragraphs, avg)
	return c
}

// sentenceSplit treats terminal punctuation and line breaks as boundaries,
// so bullet points count as sentences.
func sentenceSplit(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		out = append(out, sentencePattern.Split(line, -1)...)
	}
	return out
}

func checkOverclaims(listing string) domain.QualityCheck {
	c := domain.QualityCheck{Name: "no_overclaims"}
	var found []string
	if strings.Contains(listing, "100%") {
		found = append(found, "100%")
	}
	for _, term := range overclaimTerms {
		if containsPhrase(listing, term) {
			found = append(found, term)
		}
	}
	c.Passed = len(found) == 0
	if c.Passed {
		c.Explanation = "no absolute claims"
	} else {
		c.Explanation = "contains " + strings.Join(found, ", ")
	}
	return c
}

func checkCallToAction(listing string, d domain.CollectedData) domain.QualityCheck {
	c := domain.QualityCheck{Name: "call_to_action"}
	phrases, ok := callsToAction[d.Transaction]
	if !ok {
		phrases = callsToAction[domain.TransactionSale]
	}
	for _, p := range phrases {
		if containsPhrase(listing, p) {
			c.Passed = true
			c.Explanation = fmt.Sprintf("call to action %q", p)
			return c
		}
	}
	c.Explanation = "no call to action for " + string(d.Transaction)
	return c
}

func coverage(kws []string, present map[string]struct{}) float64 {
	if len(kws) == 0 {
		return 0
	}
	hit := 0
	for _, kw := range kws {
		if _, ok := present[kw]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(kws))
}
