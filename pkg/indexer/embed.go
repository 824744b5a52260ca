package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/llm"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// Embedder produces one vector per input text, order-preserving, with nil
// slots for empty inputs. Satisfied by llm.EmbeddingBatcher.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

var _ Embedder = (*llm.EmbeddingBatcher)(nil)

// EmbedDocuments computes embeddings for all parsed documents, keyed by
// document identity. An embedding failure is recoverable: the map is returned
// empty alongside the error and indexing proceeds full-text only.
func EmbedDocuments(ctx context.Context, embedder Embedder, docs []*ParsedDocument, logger hclog.Logger) (map[string][]float32, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if embedder == nil || len(docs) == 0 {
		return map[string][]float32{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = embeddingText(doc)
	}

	vectors, err := embedder.EmbedAll(ctx, texts)
	if err != nil {
		return map[string][]float32{}, agenterr.Recoverable(agenterr.CodeEmbeddingFailed,
			"embedding generation failed for %d documents", len(docs)).Wrap(err)
	}

	byIdentity := make(map[string][]float32, len(docs))
	for i, doc := range docs {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		id := doc.Identity()
		if id.IsZero() {
			logger.Warn("document has no identity, skipping vector", "path", doc.FilePath)
			continue
		}
		byIdentity[id.String()] = vectors[i]
	}
	logger.Info("embeddings generated", "documents", len(docs), "vectors", len(byIdentity))
	return byIdentity, nil
}

// embeddingText composes the text submitted for embedding from structured
// fields and keywords, shaped per document type.
func embeddingText(doc *ParsedDocument) string {
	var b strings.Builder
	switch doc.DocType {
	case search.DocTypeTable:
		fmt.Fprintf(&b, "Table %s.%s in database %s.", doc.Schema, doc.Table, doc.Database)
		if doc.Domain != "" {
			fmt.Fprintf(&b, " Domain: %s.", doc.Domain)
		}
		fmt.Fprintf(&b, " %s", doc.Description)
		if len(doc.Columns) > 0 {
			names := make([]string, len(doc.Columns))
			for i, c := range doc.Columns {
				names[i] = c.Name
			}
			fmt.Fprintf(&b, " Columns: %s.", strings.Join(names, ", "))
		}
	case search.DocTypeColumn:
		fmt.Fprintf(&b, "Column %s of table %s.%s in database %s.",
			doc.Column, doc.Schema, doc.Table, doc.Database)
		if len(doc.Columns) == 1 {
			fmt.Fprintf(&b, " Type: %s.", doc.Columns[0].Type)
		}
		fmt.Fprintf(&b, " %s", doc.Description)
	case search.DocTypeDomain:
		fmt.Fprintf(&b, "Domain %s in database %s. %s", doc.Domain, doc.Database, doc.Description)
		if len(doc.DomainTables) > 0 {
			fmt.Fprintf(&b, " Tables: %s.", strings.Join(doc.DomainTables, ", "))
		}
	case search.DocTypeRelationship:
		fmt.Fprintf(&b, "Relationships in database %s. %s", doc.Database, doc.Description)
		for _, e := range doc.Edges {
			fmt.Fprintf(&b, " %s joins %s.", e.SourceTable, e.TargetTable)
		}
	case search.DocTypeOverview:
		fmt.Fprintf(&b, "Database %s overview. %s %s", doc.Database, doc.Title, doc.Description)
	default:
		b.WriteString(doc.Description)
	}

	if len(doc.Keywords) > 0 {
		fmt.Fprintf(&b, " Keywords: %s.", strings.Join(doc.Keywords, ", "))
	}
	return strings.TrimSpace(b.String())
}
