// Package indexer consumes the documentation manifest: it parses artifact
// files into typed documents, extracts keywords, generates embeddings, and
// populates the index store with documents, vectors, and table
// relationships.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/documenter"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// Indexer orchestrates one indexing run.
type Indexer struct {
	fs          afero.Fs
	docsRoot    string
	progressDir string
	store       search.Store
	embedder    Embedder
	logger      hclog.Logger
	now         func() time.Time

	incremental    bool
	force          bool
	skipEmbeddings bool
	dryRun         bool
	workUnit       string
}

// Option is a functional option for creating an Indexer.
type Option func(*Indexer)

// WithFS sets the filesystem.
func WithFS(fs afero.Fs) Option {
	return func(ix *Indexer) { ix.fs = fs }
}

// WithDocsRoot sets the documentation root.
func WithDocsRoot(root string) Option {
	return func(ix *Indexer) { ix.docsRoot = root }
}

// WithProgressDir sets the progress directory.
func WithProgressDir(dir string) Option {
	return func(ix *Indexer) { ix.progressDir = dir }
}

// WithStore sets the index store.
func WithStore(store search.Store) Option {
	return func(ix *Indexer) { ix.store = store }
}

// WithEmbedder sets the embedding source. A nil embedder indexes full-text
// only.
func WithEmbedder(embedder Embedder) Option {
	return func(ix *Indexer) { ix.embedder = embedder }
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(ix *Indexer) { ix.logger = logger }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) { ix.now = now }
}

// WithIncremental enables change-set indexing against the current index.
func WithIncremental(on bool) Option {
	return func(ix *Indexer) { ix.incremental = on }
}

// WithForce clears the index before populating.
func WithForce(on bool) Option {
	return func(ix *Indexer) { ix.force = on }
}

// WithSkipEmbeddings indexes full-text only.
func WithSkipEmbeddings(on bool) Option {
	return func(ix *Indexer) { ix.skipEmbeddings = on }
}

// WithDryRun parses and reports without writing to the store.
func WithDryRun(on bool) Option {
	return func(ix *Indexer) { ix.dryRun = on }
}

// WithWorkUnit restricts indexing to one work unit's output subtree.
func WithWorkUnit(id string) Option {
	return func(ix *Indexer) { ix.workUnit = id }
}

// New creates an Indexer.
func New(opts ...Option) (*Indexer, error) {
	ix := &Indexer{
		fs:          afero.NewOsFs(),
		docsRoot:    documenter.DefaultDocsRoot(),
		progressDir: documenter.DefaultProgressDir(),
		logger:      hclog.NewNullLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.store == nil && !ix.dryRun {
		return nil, fmt.Errorf("index store is required")
	}
	return ix, nil
}

// Run executes the indexing phases in order, persisting each transition.
func (ix *Indexer) Run(ctx context.Context) error {
	logger := ix.logger.Named("indexer")
	tracker := newProgressTracker(ix.fs, ix.progressDir, logger, ix.now)

	err := ix.run(ctx, logger, tracker)
	if err != nil {
		tracker.recordError(err)
		tracker.finish(models.StatusFailed)
		return err
	}
	tracker.finish(models.StatusCompleted)
	return nil
}

func (ix *Indexer) run(ctx context.Context, logger hclog.Logger, tracker *progressTracker) error {
	tracker.phase(models.PhaseValidating)
	manifest, err := LoadManifest(ix.fs, ix.docsRoot)
	if err != nil {
		return err
	}
	tracker.state.ManifestHash = models.HashBytes([]byte(manifest.PlanHash + manifest.CompletedAt))

	ws, err := BuildWorkingSet(ix.fs, ix.docsRoot, manifest, ix.workUnit, logger)
	if err != nil {
		return err
	}
	if len(ws.Files) == 0 {
		return agenterr.Fatal(agenterr.CodeManifestInvalid,
			"no manifest files survive validation")
	}
	tracker.state.FilesTotal = len(ws.Files)

	if ix.force && !ix.dryRun {
		logger.Info("force: clearing index")
		if err := ix.store.Clear(ctx); err != nil {
			return agenterr.Fatal(agenterr.CodeFatal, "failed to clear index").Wrap(err)
		}
	}

	var edgeSet *WorkingSet
	if ix.incremental && !ix.force && !ix.dryRun {
		ws, edgeSet, err = ix.applyIncremental(ctx, logger, ws)
		if err != nil {
			return err
		}
		if len(ws.Files) == 0 && len(edgeSet.Files) == 0 {
			logger.Info("index is up to date")
			return nil
		}
	}

	tracker.phase(models.PhaseParsing)
	parser := NewParser(ix.fs, ix.docsRoot, logger)
	docs, warnings := parser.ParseAll(ws)
	for _, w := range warnings {
		tracker.recordError(w)
	}
	tracker.state.FilesParsed = len(ws.Files) - len(warnings)
	tracker.state.FilesFailed = len(warnings)

	// Unchanged files re-read for the relationship rebuild contribute edges
	// only; they are never re-upserted.
	var edgeDocs []*ParsedDocument
	if edgeSet != nil && len(edgeSet.Files) > 0 {
		var edgeWarnings []error
		edgeDocs, edgeWarnings = parser.ParseAll(edgeSet)
		for _, w := range edgeWarnings {
			logger.Warn("failed to re-read unchanged file for edges", "error", w)
		}
	}

	if len(docs) == 0 && len(edgeDocs) == 0 {
		return agenterr.Fatal(agenterr.CodeFatal, "no documents parsed from %d files", len(ws.Files))
	}

	for _, doc := range docs {
		doc.Keywords = ExtractKeywords(doc)
	}

	tracker.phase(models.PhaseEmbedding)
	vectors := map[string][]float32{}
	if !ix.skipEmbeddings && ix.embedder != nil {
		vectors, err = EmbedDocuments(ctx, ix.embedder, docs, logger)
		if err != nil {
			// Embedding failures degrade to full-text only.
			logger.Warn("continuing without embeddings", "error", err)
			tracker.recordError(err)
		}
	}
	tracker.state.EmbeddingsCreated = len(vectors)

	if ix.dryRun {
		logger.Info("dry run: skipping index writes",
			"documents", len(docs), "vectors", len(vectors))
		return nil
	}

	tracker.phase(models.PhaseIndexing)
	result := &PopulateResult{}
	if len(docs) > 0 {
		result, err = Populate(ctx, ix.store, docs, vectors, logger)
		if err != nil {
			return err
		}
	}
	tracker.state.DocumentsIndexed = result.Indexed

	tracker.phase(models.PhaseRelationships)
	relDocs := docs
	if len(edgeDocs) > 0 {
		relDocs = make([]*ParsedDocument, 0, len(docs)+len(edgeDocs))
		relDocs = append(relDocs, docs...)
		relDocs = append(relDocs, edgeDocs...)
	}
	relCount, err := BuildRelationships(ctx, ix.store, relDocs, logger)
	if err != nil {
		return err
	}
	tracker.state.RelationshipsCount = relCount

	if err := ix.store.SetMetadata(ctx, "plan_hash", manifest.PlanHash); err != nil {
		return agenterr.Fatal(agenterr.CodeFatal, "failed to record plan hash").Wrap(err)
	}
	if err := ix.store.SetMetadata(ctx, "manifest_completed_at", manifest.CompletedAt); err != nil {
		return agenterr.Fatal(agenterr.CodeFatal, "failed to record manifest timestamp").Wrap(err)
	}
	if err := ix.store.SetMetadata(ctx, "last_indexed_at", ix.now().UTC().Format(time.RFC3339)); err != nil {
		return agenterr.Fatal(agenterr.CodeFatal, "failed to record index timestamp").Wrap(err)
	}

	tracker.phase(models.PhaseOptimizing)
	if err := ix.store.Optimize(ctx); err != nil {
		// Best effort.
		logger.Warn("optimization failed", "error", err)
		tracker.recordError(err)
	}

	logger.Info("indexing finished",
		"documents", result.Indexed,
		"vectors", result.VectorsAttached,
		"relationships", relCount,
	)
	return nil
}

// applyIncremental partitions the working set against the index, deletes
// vanished files, and narrows the set to new and changed files. When a table
// changed, the unchanged table and relationship files come back in a second
// set: BuildRelationships needs every table's edges, but re-upserting the
// unchanged rows would move their indexed_at, so they stay out of Populate.
func (ix *Indexer) applyIncremental(ctx context.Context, logger hclog.Logger, ws *WorkingSet) (*WorkingSet, *WorkingSet, error) {
	cs, err := PartitionChanges(ctx, ix.store, ws)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("incremental change set",
		"new", len(cs.New),
		"changed", len(cs.Changed),
		"deleted", len(cs.Deleted),
		"unchanged", len(cs.Unchanged),
	)

	if err := ApplyDeletions(ctx, ix.store, cs.Deleted, logger); err != nil {
		return nil, nil, err
	}

	narrowed := &WorkingSet{Manifest: ws.Manifest, Missing: ws.Missing}
	narrowed.Files = append(narrowed.Files, cs.New...)
	narrowed.Files = append(narrowed.Files, cs.Changed...)

	dirtyTables := map[string]bool{}
	for _, wf := range narrowed.Files {
		if wf.Type == models.FileTypeTable {
			dirtyTables[tablePairKey(wf.Path)] = true
		}
	}

	edges := &WorkingSet{Manifest: ws.Manifest}
	for _, wf := range cs.Unchanged {
		switch {
		case wf.Type == models.FileTypeTable && dirtyTables[tablePairKey(wf.Path)]:
			// The sibling artifact changed; the pair re-indexes as one
			// document.
			narrowed.Files = append(narrowed.Files, wf)
		case cs.TablesDirty && (wf.Type == models.FileTypeTable || wf.Type == models.FileTypeRelationship):
			edges.Files = append(edges.Files, wf)
		}
	}
	return narrowed, edges, nil
}

// Stats returns index counts and provenance metadata for reporting.
func (ix *Indexer) Stats(ctx context.Context) (*search.Counts, map[string]string, error) {
	counts, err := ix.store.Counts(ctx)
	if err != nil {
		return nil, nil, err
	}
	meta := map[string]string{}
	for _, key := range []string{"plan_hash", "manifest_completed_at", "last_indexed_at"} {
		v, err := ix.store.GetMetadata(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if v != "" {
			meta[key] = v
		}
	}
	return counts, meta, nil
}

// VerifyReport summarizes a read-only manifest check.
type VerifyReport struct {
	Total   int
	Clean   int
	Drifted []string
	Missing []string
}

// Verify re-walks the manifest and reports hash drift without writing.
func (ix *Indexer) Verify(ctx context.Context) (*VerifyReport, error) {
	manifest, err := LoadManifest(ix.fs, ix.docsRoot)
	if err != nil {
		return nil, err
	}
	ws, err := BuildWorkingSet(ix.fs, ix.docsRoot, manifest, ix.workUnit, hclog.NewNullLogger())
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{Total: len(manifest.IndexableFiles), Missing: ws.Missing}
	for _, wf := range ws.Files {
		if wf.Changed {
			report.Drifted = append(report.Drifted, wf.Path)
		} else {
			report.Clean++
		}
	}
	return report, nil
}
