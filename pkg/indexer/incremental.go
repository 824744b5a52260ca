package indexer

import (
	"context"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// ChangeSet partitions the working set against the current index contents.
type ChangeSet struct {
	New       []WorkingFile
	Changed   []WorkingFile
	Unchanged []WorkingFile

	// Deleted lists indexed file paths no longer present in the manifest.
	Deleted []string

	// TablesDirty is set when any table file is new, changed, or deleted,
	// which forces a relationship rebuild.
	TablesDirty bool
}

// PartitionChanges compares the working set's content hashes against the
// documents already indexed. Virtual column paths (containing '#') are
// derived rows and never partition on their own.
func PartitionChanges(ctx context.Context, store search.Store, ws *WorkingSet) (*ChangeSet, error) {
	indexed, err := store.ListDocuments(ctx, search.ListFilter{})
	if err != nil {
		return nil, agenterr.Fatal(agenterr.CodeFatal,
			"failed to list indexed documents").Wrap(err)
	}

	hashByPath := map[string]string{}
	for _, doc := range indexed {
		if strings.Contains(doc.FilePath, "#") {
			continue
		}
		hashByPath[doc.FilePath] = doc.ContentHash
	}

	cs := &ChangeSet{}
	seen := map[string]bool{}
	for _, wf := range ws.Files {
		seen[wf.Path] = true
		stored, exists := hashByPath[wf.Path]
		switch {
		case !exists:
			cs.New = append(cs.New, wf)
		case stored != wf.ActualHash:
			cs.Changed = append(cs.Changed, wf)
		default:
			cs.Unchanged = append(cs.Unchanged, wf)
		}
	}

	for path := range hashByPath {
		if !seen[path] {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	cs.TablesDirty = anyTable(cs.New) || anyTable(cs.Changed) || anyTablePath(cs.Deleted)
	return cs, nil
}

func anyTable(files []WorkingFile) bool {
	for _, wf := range files {
		if wf.Type == models.FileTypeTable {
			return true
		}
	}
	return false
}

func anyTablePath(paths []string) bool {
	for _, p := range paths {
		if strings.Contains(p, "/tables/") {
			return true
		}
	}
	return false
}

// ApplyDeletions removes index rows for files gone from the manifest. Column
// rows cascade through parent_doc_id; relationships for deleted tables are
// cleared so the rebuild does not resurrect them.
func ApplyDeletions(ctx context.Context, store search.Store, deleted []string, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	for _, path := range deleted {
		doc, err := store.GetDocumentByPath(ctx, path)
		if err == nil && doc.DocType == search.DocTypeTable {
			if err := store.DeleteRelationshipsForTable(ctx, doc.Database, doc.Schema, doc.Table); err != nil {
				return agenterr.Fatal(agenterr.CodeFatal,
					"failed to clear relationships for deleted %s", path).Wrap(err)
			}
		}
		if err := store.DeleteDocumentByPath(ctx, path); err != nil {
			return agenterr.Fatal(agenterr.CodeFatal,
				"failed to delete indexed %s", path).Wrap(err)
		}
		logger.Debug("removed from index", "path", path)
	}
	return nil
}
