package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

func TestExtractKeywordsTableDocument(t *testing.T) {
	doc := &ParsedDocument{
		DocType:     search.DocTypeTable,
		Database:    "shop",
		Schema:      "public",
		Table:       "cust_orders",
		Domain:      "orders",
		Description: "Tracks customer payment history per order.",
		Columns: []ParsedColumn{
			{Name: "order_id", Type: "bigint"},
			{Name: "placed_at", Type: "timestamptz"},
			{Name: "pmt_status", Type: "varchar(32)"},
		},
	}

	got := ExtractKeywords(doc)

	// Identifier tokens, abbreviation-expanded.
	assert.Contains(t, got, "customer", "cust expands")
	assert.Contains(t, got, "orders")
	assert.Contains(t, got, "order", "singular form of the table name")
	assert.Contains(t, got, "payment", "pmt expands")
	assert.Contains(t, got, "status")
	assert.Contains(t, got, "placed")

	// Type labels.
	assert.Contains(t, got, "date")
	assert.Contains(t, got, "temporal")

	// Description vocabulary.
	assert.Contains(t, got, "history")

	// Short tokens are dropped.
	assert.NotContains(t, got, "id")
	assert.NotContains(t, got, "at")
}

func TestExtractKeywordsColumnSkipsSiblingNames(t *testing.T) {
	doc := &ParsedDocument{
		DocType:  search.DocTypeColumn,
		Database: "shop",
		Schema:   "public",
		Table:    "users",
		Column:   "email_addr",
		Columns:  []ParsedColumn{{Name: "email_addr", Type: "varchar(255)"}},
	}

	got := ExtractKeywords(doc)
	assert.Contains(t, got, "email")
	assert.Contains(t, got, "address", "addr expands")
	assert.Contains(t, got, "users")
}

func TestDetectPatterns(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   []string
	}{
		{"emails", []string{"a@example.com", "b@example.org"}, []string{"email"}},
		{"urls", []string{"https://example.com/x", "http://example.org"}, []string{"url"}},
		{"uuids", []string{
			"6ba7b810-9dad-11d1-80b4-00c04fd430c8",
			"6ba7b811-9dad-11d1-80b4-00c04fd430c8",
		}, []string{"identifier", "uuid"}},
		{"currency", []string{"$19.99", "$5.00"}, []string{"currency"}},
		{"dates", []string{"2026-08-01T10:00:00Z", "2026-08-02"}, []string{"date"}},
		{"json", []string{`{"a":1}`, `["x"]`}, []string{"json"}},
		{"mixed minority", []string{"plain", "text", "a@example.com"}, nil},
		{"empty", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectPatterns(tc.values))
		})
	}
}

func TestTypeTerms(t *testing.T) {
	assert.Equal(t, []string{"date", "temporal"}, typeTerms("TIMESTAMP WITH TIME ZONE"))
	assert.Equal(t, []string{"identifier"}, typeTerms("uuid"))
	assert.Equal(t, []string{"number"}, typeTerms("numeric(10,2)"))
	assert.Nil(t, typeTerms("text"))
}
