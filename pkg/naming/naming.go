// Package naming splits database identifiers into word tokens and expands
// the common abbreviations found in table and column names. The planner's
// rule-based domain fallback and the indexer's keyword extractor share this
// dictionary so the two stages agree on vocabulary.
package naming

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// abbreviations maps identifier tokens to their expanded word.
var abbreviations = map[string]string{
	"acct":  "account",
	"addr":  "address",
	"amt":   "amount",
	"auth":  "authentication",
	"avg":   "average",
	"cat":   "category",
	"cfg":   "config",
	"cnt":   "count",
	"cust":  "customer",
	"desc":  "description",
	"dept":  "department",
	"dt":    "date",
	"qty":   "quantity",
	"img":   "image",
	"inv":   "invoice",
	"mgr":   "manager",
	"msg":   "message",
	"num":   "number",
	"org":   "organization",
	"pmt":   "payment",
	"prod":  "product",
	"pwd":   "password",
	"ref":   "reference",
	"src":   "source",
	"stat":  "status",
	"tmp":   "temporary",
	"txn":   "transaction",
	"usr":   "user",
	"val":  "value",
	"dest": "destination",
	"attr": "attribute",
}

// Expand returns the dictionary expansion of a token, or the token itself.
func Expand(token string) string {
	if full, ok := abbreviations[strings.ToLower(token)]; ok {
		return full
	}
	return token
}

// Split breaks an identifier into lowercase word tokens: snake_case and
// camelCase are both handled, digits stay attached to their word.
func Split(identifier string) []string {
	delimited := strcase.ToDelimited(identifier, '_')
	parts := strings.FieldsFunc(delimited, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitExpanded splits an identifier and expands each token.
func SplitExpanded(identifier string) []string {
	tokens := Split(identifier)
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = Expand(tok)
	}
	return out
}

// Singular trims a plural "s" suffix for matching. Crude but adequate for
// table-name vocabulary ("orders" vs "order").
func Singular(word string) string {
	w := strings.ToLower(word)
	if strings.HasSuffix(w, "ies") && len(w) > 3 {
		return w[:len(w)-3] + "y"
	}
	if strings.HasSuffix(w, "ses") && len(w) > 3 {
		return w[:len(w)-2]
	}
	if strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 1 {
		return w[:len(w)-1]
	}
	return w
}
