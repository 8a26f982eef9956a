package wizard

import (
	"strings"
	"unicode"

	"listing-wizard/internal/domain"
)

const defaultPropertyType = "apartment"

var propertyHighlights = map[string][]string{
	"apartment": {
		"city center location",
		"modern kitchen",
		"balcony",
		"elevator",
		"parking space",
		"storage room",
		"energy efficient",
		"recently renovated",
		"good public transport",
		"shopping nearby",
		"quiet neighborhood",
		"great view",
	},
	"house": {
		"private garden",
		"garage",
		"multiple floors",
		"fireplace",
		"modern kitchen",
		"spacious living room",
		"master bedroom",
		"family bathroom",
		"storage space",
		"good neighborhood",
		"near schools",
		"parking space",
	},
	"studio": {
		"central location",
		"modern appliances",
		"efficient layout",
		"good natural light",
		"close to transport",
		"low maintenance",
		"affordable utilities",
		"near amenities",
		"perfect for starter",
		"investment potential",
		"quiet building",
		"security entrance",
	},
	"villa": {
		"luxury finishes",
		"private pool",
		"large garden",
		"multiple garages",
		"high ceilings",
		"premium location",
		"security system",
		"guest rooms",
		"entertainment area",
		"panoramic views",
		"wine cellar",
		"home office",
	},
}

// propertyTypes maps recognized words, English and Dutch, to the stored
// property type.
var propertyTypes = map[string]string{
	"apartment":    "apartment",
	"appartement":  "apartment",
	"flat":         "apartment",
	"condo":        "apartment",
	"penthouse":    "penthouse",
	"house":        "house",
	"huis":         "house",
	"woning":       "house",
	"townhouse":    "townhouse",
	"rijtjeshuis":  "townhouse",
	"tussenwoning": "townhouse",
	"bungalow":     "bungalow",
	"cottage":      "cottage",
	"loft":         "loft",
	"duplex":       "duplex",
	"studio":       "studio",
	"villa":        "villa",
}

// HighlightsFor returns the highlight vocabulary for a property type. Types
// without their own vocabulary get the apartment list.
func HighlightsFor(propertyType string) []string {
	list, ok := propertyHighlights[strings.ToLower(strings.TrimSpace(propertyType))]
	if !ok {
		list = propertyHighlights[defaultPropertyType]
	}
	return append([]string(nil), list...)
}

// MatchPropertyType reports the canonical type of the first recognized
// property word in message.
func MatchPropertyType(message string) (string, bool) {
	for _, w := range words(message) {
		if t, ok := propertyTypes[w]; ok {
			return t, true
		}
	}
	return "", false
}

var transactionSignals = map[string]domain.Transaction{
	"rent":       domain.TransactionRent,
	"rental":     domain.TransactionRent,
	"renting":    domain.TransactionRent,
	"lease":      domain.TransactionRent,
	"leasing":    domain.TransactionRent,
	"huur":       domain.TransactionRent,
	"huren":      domain.TransactionRent,
	"verhuur":    domain.TransactionRent,
	"verhuren":   domain.TransactionRent,
	"huurwoning": domain.TransactionRent,
	"sale":       domain.TransactionSale,
	"sell":       domain.TransactionSale,
	"selling":    domain.TransactionSale,
	"buy":        domain.TransactionSale,
	"purchase":   domain.TransactionSale,
	"koop":       domain.TransactionSale,
	"kopen":      domain.TransactionSale,
	"verkoop":    domain.TransactionSale,
	"verkopen":   domain.TransactionSale,
	"koopwoning": domain.TransactionSale,
}

// DetectTransaction returns the transaction signalled by the earliest
// recognized word in message.
func DetectTransaction(message string) (domain.Transaction, bool) {
	for _, w := range words(message) {
		if t, ok := transactionSignals[w]; ok {
			return t, true
		}
	}
	return "", false
}

// words lower-cases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "does": {}, "from": {},
	"have": {}, "here": {}, "into": {}, "more": {}, "much": {}, "only": {},
	"over": {}, "some": {}, "such": {}, "than": {}, "that": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {}, "your": {}, "property": {}, "voor": {}, "deze": {},
	"zijn": {}, "niet": {}, "wordt": {}, "heeft": {}, "maar": {}, "naar": {},
}

// keywords are the lower-cased words of s with at least four letters that
// are not stopwords, in order of first appearance.
func keywords(s string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, w := range words(s) {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// wordSet builds a lookup of the words in s.
func wordSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range words(s) {
		set[w] = struct{}{}
	}
	return set
}

// containsPhrase reports whether the words of phrase occur contiguously in
// text, ignoring case and punctuation.
func containsPhrase(text, phrase string) bool {
	p := strings.Join(words(phrase), " ")
	if p == "" {
		return false
	}
	return strings.Contains(" "+strings.Join(words(text), " ")+" ", " "+p+" ")
}
