package indexer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"

	"github.com/hashicorp-forge/schemadoc/pkg/naming"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// typeLabels maps data-type families to semantic search terms.
var typeLabels = map[string][]string{
	"timestamp": {"date", "temporal"},
	"timestamptz": {"date", "temporal"},
	"datetime":  {"date", "temporal"},
	"date":      {"date", "temporal"},
	"time":      {"temporal"},
	"uuid":      {"identifier"},
	"serial":    {"identifier"},
	"bigserial": {"identifier"},
	"boolean":   {"flag"},
	"bool":      {"flag"},
	"numeric":   {"number"},
	"decimal":   {"number"},
	"money":     {"currency", "money"},
	"json":      {"json", "document"},
	"jsonb":     {"json", "document"},
	"bytea":     {"binary"},
	"blob":      {"binary"},
	"inet":      {"network", "address"},
}

// dbVocabulary marks description words worth keeping even when they are not
// identifier tokens.
var dbVocabulary = map[string]bool{
	"account": true, "address": true, "amount": true, "audit": true,
	"balance": true, "billing": true, "category": true, "count": true,
	"currency": true, "customer": true, "event": true, "foreign": true,
	"history": true, "identifier": true, "index": true, "inventory": true,
	"invoice": true, "key": true, "log": true, "lookup": true, "order": true,
	"payment": true, "price": true, "primary": true, "product": true,
	"quantity": true, "record": true, "reference": true, "session": true,
	"shipment": true, "status": true, "subscription": true, "timestamp": true,
	"total": true, "transaction": true, "user": true,
}

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	urlPattern      = regexp.MustCompile(`^https?://`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{6,}$`)
	currencyPattern = regexp.MustCompile(`^[$€£]\s?[0-9][0-9,.]*$|^[0-9]+\.[0-9]{2}$`)
	wordPattern     = regexp.MustCompile(`[A-Za-z]+`)
)

// ExtractKeywords builds the keyword set for one parsed document: identifier
// tokens with abbreviation expansion, data-type labels, sample-value pattern
// detections, description vocabulary, and parent context. Terms shorter than
// three characters are dropped.
func ExtractKeywords(doc *ParsedDocument) []string {
	set := map[string]bool{}
	add := func(terms ...string) {
		for _, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			if len(t) > 2 {
				set[t] = true
			}
		}
	}

	add(naming.SplitExpanded(doc.Table)...)
	add(naming.SplitExpanded(doc.Column)...)
	add(naming.SplitExpanded(doc.Domain)...)
	if doc.Table != "" {
		add(naming.Singular(strings.ToLower(doc.Table)))
	}

	for _, c := range doc.Columns {
		if doc.DocType != search.DocTypeColumn {
			add(naming.SplitExpanded(c.Name)...)
		}
		add(typeTerms(c.Type)...)
	}

	for _, vals := range doc.SampleValues {
		add(detectPatterns(vals)...)
	}

	add(descriptionTerms(doc.Description)...)
	return sortedTerms(set)
}

// typeTerms maps a SQL type to its semantic labels. Precision suffixes like
// "varchar(255)" and "timestamp with time zone" are normalized away.
func typeTerms(sqlType string) []string {
	base := strings.ToLower(sqlType)
	if i := strings.IndexAny(base, "( "); i > 0 {
		base = base[:i]
	}
	return typeLabels[base]
}

// detectPatterns classifies sample values into semantic labels. A label is
// reported when at least half the non-empty samples match it.
func detectPatterns(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	counts := map[string]int{}
	total := 0
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		total++
		switch {
		case emailPattern.MatchString(v):
			counts["email"]++
		case urlPattern.MatchString(v):
			counts["url"]++
		case isUUID(v):
			counts["uuid"]++
			counts["identifier"]++
		case currencyPattern.MatchString(v):
			counts["currency"]++
		case phonePattern.MatchString(v):
			counts["phone"]++
		case isJSONValue(v):
			counts["json"]++
		case isDateValue(v):
			counts["date"]++
		}
	}
	if total == 0 {
		return nil
	}
	var labels []string
	for label, n := range counts {
		if n*2 >= total {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

func isUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil && len(v) == 36
}

func isJSONValue(v string) bool {
	return (strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}")) ||
		(strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]"))
}

func isDateValue(v string) bool {
	if len(v) < 6 || !strings.ContainsAny(v, "-/:") {
		return false
	}
	_, err := dateparse.ParseAny(v)
	return err == nil
}

// descriptionTerms keeps database-vocabulary words from free-text
// descriptions.
func descriptionTerms(desc string) []string {
	var out []string
	for _, word := range wordPattern.FindAllString(desc, -1) {
		w := strings.ToLower(word)
		if dbVocabulary[w] || dbVocabulary[naming.Singular(w)] {
			out = append(out, naming.Singular(w))
		}
	}
	return out
}

func sortedTerms(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
