package indexer

import (
	"context"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/docid"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// docTypeRank orders population so parents land before dependents.
var docTypeRank = map[string]int{
	search.DocTypeTable:        0,
	search.DocTypeDomain:       1,
	search.DocTypeOverview:     2,
	search.DocTypeRelationship: 3,
	search.DocTypeColumn:       4,
}

// sortDocuments orders documents for population: tables, domains, overviews,
// relationships, then columns, with path order inside each group for
// deterministic runs.
func sortDocuments(docs []*ParsedDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		ri, rj := docTypeRank[docs[i].DocType], docTypeRank[docs[j].DocType]
		if ri != rj {
			return ri < rj
		}
		return docs[i].FilePath < docs[j].FilePath
	})
}

// PopulateResult summarizes one population pass.
type PopulateResult struct {
	Indexed          int
	VectorsAttached  int
	UnresolvedParent int
}

// Populate writes all parsed documents, their vectors, and their keyword
// frequencies in a single transaction. Vectors are looked up by document
// identity; a document without a vector gets any stale vector row deleted.
func Populate(ctx context.Context, store search.Store, docs []*ParsedDocument, vectors map[string][]float32, logger hclog.Logger) (*PopulateResult, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	sortDocuments(docs)

	result := &PopulateResult{}
	err := store.Transaction(ctx, func(tx search.Store) error {
		tableIDs := map[string]int64{}
		keywordFreq := map[string]map[string]int{}

		for _, doc := range docs {
			row := doc.document()
			if doc.DocType == search.DocTypeColumn && doc.ParentTablePath != "" {
				if parentID, ok := tableIDs[doc.ParentTablePath]; ok {
					row.ParentDocID = &parentID
				} else if parent, err := tx.GetDocumentByPath(ctx, doc.ParentTablePath); err == nil {
					// Incremental runs can re-index a column whose table is
					// unchanged and already in the store.
					row.ParentDocID = &parent.ID
				} else {
					logger.Warn("column has no parent table, indexing unlinked",
						"path", doc.FilePath, "parent", doc.ParentTablePath)
					result.UnresolvedParent++
				}
			}

			id, err := tx.UpsertDocument(ctx, row)
			if err != nil {
				return agenterr.Fatal(agenterr.CodeFatal,
					"failed to index %s", doc.FilePath).Wrap(err)
			}
			result.Indexed++
			if doc.DocType == search.DocTypeTable {
				tableIDs[doc.FilePath] = id
			}

			if vec, ok := docid.Lookup(vectors, doc.Identity()); ok && len(vec) > 0 {
				if err := tx.UpsertVector(ctx, id, vec); err != nil {
					return agenterr.Fatal(agenterr.CodeFatal,
						"failed to attach vector for %s", doc.FilePath).Wrap(err)
				}
				result.VectorsAttached++
			} else if err := tx.DeleteVector(ctx, id); err != nil {
				return agenterr.Fatal(agenterr.CodeFatal,
					"failed to clear stale vector for %s", doc.FilePath).Wrap(err)
			}

			freq := keywordFreq[doc.DocType]
			if freq == nil {
				freq = map[string]int{}
				keywordFreq[doc.DocType] = freq
			}
			for _, term := range doc.Keywords {
				freq[term]++
			}
		}

		for sourceType, freq := range keywordFreq {
			if len(freq) == 0 {
				continue
			}
			if err := tx.RecordKeywords(ctx, freq, sourceType); err != nil {
				return agenterr.Fatal(agenterr.CodeFatal,
					"failed to record keywords").Wrap(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("index populated",
		"documents", result.Indexed,
		"vectors", result.VectorsAttached,
		"unresolved_parents", result.UnresolvedParent,
	)
	return result, nil
}
