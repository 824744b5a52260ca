package indexer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
	"github.com/hashicorp-forge/schemadoc/pkg/search/sqlite"
)

// stubEmbedder returns a fixed vector per non-empty input.
type stubEmbedder struct {
	calls int
	fail  bool
}

func (s *stubEmbedder) EmbedAll(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.fail {
		return nil, assert.AnError
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if text != "" {
			out[i] = []float32{0.1, 0.2, 0.3}
		}
	}
	return out, nil
}

const usersMD = `# users

**Database:** shop
**Schema:** public
**Description:** Registered user accounts.

## Columns

| Column | Type | Nullable | Description |
|--------|------|----------|-------------|
| id | bigint | NO | Surrogate user identifier. |
| email | varchar(255) | NO | The user's email address. |

## Primary Key

- id

*Generated at: 2026-08-24T12:00:00Z*
`

const ordersMD = `# orders

**Database:** shop
**Schema:** public
**Description:** Customer orders.

## Columns

| Column | Type | Nullable | Description |
|--------|------|----------|-------------|
| id | bigint | NO | Surrogate order identifier. |
| user_id | bigint | NO | Ordering user. |

## Primary Key

- id

## Foreign Keys

- user_id → public.users.id

*Generated at: 2026-08-24T12:00:00Z*
`

const domainMD = `# Users Domain

Accounts and order activity.

## Tables

- users
- orders
`

const overviewMD = `# Shop

An e-commerce database.
`

// docsFixture writes a complete docs tree plus its manifest and returns the
// file set for later mutation.
func docsFixture(t *testing.T, fs afero.Fs) map[string]string {
	t.Helper()
	files := map[string]string{
		"databases/shop/domains/users/tables/public.users.md":  usersMD,
		"databases/shop/domains/users/tables/public.orders.md": ordersMD,
		"databases/shop/domains/users/README.md":               domainMD,
		"databases/shop/overview.md":                           overviewMD,
	}
	writeFixtureManifest(t, fs, files)
	return files
}

func writeFixtureManifest(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	manifest := &models.Manifest{
		SchemaVersion: models.ManifestSchemaVersion,
		Status:        models.ManifestComplete,
		PlanHash:      "planhash",
		CompletedAt:   "2026-08-24T12:05:00Z",
		Databases:     []models.ManifestDatabase{{Name: "shop"}},
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, "docs/"+path, []byte(content), 0o644))
		entry := models.IndexableFile{
			Path:        path,
			Database:    "shop",
			ContentHash: models.HashBytes([]byte(content)),
			ModifiedAt:  "2026-08-24T12:00:00Z",
		}
		switch {
		case path == "databases/shop/overview.md":
			entry.Type = models.FileTypeOverview
		case path == "databases/shop/domains/users/README.md":
			entry.Type = models.FileTypeDomain
			entry.Domain = "users"
		default:
			entry.Type = models.FileTypeTable
			entry.Schema = "public"
			entry.Domain = "users"
			base := path[len("databases/shop/domains/users/tables/public.") : len(path)-len(".md")]
			entry.Table = base
		}
		manifest.IndexableFiles = append(manifest.IndexableFiles, entry)
	}
	manifest.TotalFiles = len(manifest.IndexableFiles)
	writeManifest(t, fs, manifest)
}

func newTestIndexer(t *testing.T, fs afero.Fs, store search.Store, opts ...Option) *Indexer {
	t.Helper()
	base := []Option{
		WithFS(fs),
		WithDocsRoot("docs"),
		WithProgressDir("progress"),
		WithStore(store),
		WithEmbedder(&stubEmbedder{}),
	}
	ix, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return ix
}

func TestIndexerRunEndToEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	docsFixture(t, fs)
	store := openStore(t)
	ctx := context.Background()

	ix := newTestIndexer(t, fs, store)
	require.NoError(t, ix.Run(ctx))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	// 2 tables + 4 columns + 1 domain + 1 overview.
	assert.EqualValues(t, 8, counts.Documents)
	assert.EqualValues(t, 2, counts.ByType[search.DocTypeTable])
	assert.EqualValues(t, 4, counts.ByType[search.DocTypeColumn])
	assert.EqualValues(t, 8, counts.Vectors, "every document gets a vector")
	assert.NotZero(t, counts.Keywords)

	// Parent linkage: the email column points at the users table.
	table, err := store.GetDocumentByPath(ctx, "databases/shop/domains/users/tables/public.users.md")
	require.NoError(t, err)
	col, err := store.GetDocumentByPath(ctx, "databases/shop/domains/users/tables/public.users.md#email")
	require.NoError(t, err)
	require.NotNil(t, col.ParentDocID)
	assert.Equal(t, table.ID, *col.ParentDocID)

	// The orders FK lands as a direct edge with confidence 1.0.
	rels, err := store.ListRelationships(ctx, "shop")
	require.NoError(t, err)
	require.NotEmpty(t, rels)
	var direct *search.Relationship
	for i := range rels {
		if rels[i].RelationshipType == search.RelForeignKey {
			direct = &rels[i]
		}
	}
	require.NotNil(t, direct)
	assert.Equal(t, "orders", direct.SourceTable)
	assert.Equal(t, "users", direct.TargetTable)
	assert.Equal(t, 1, direct.HopCount)
	assert.Equal(t, 1.0, direct.Confidence)

	// Provenance metadata.
	planHash, err := store.GetMetadata(ctx, "plan_hash")
	require.NoError(t, err)
	assert.Equal(t, "planhash", planHash)

	// Progress lands with the terminal phase and status.
	raw, err := afero.ReadFile(fs, "progress/indexer-progress.json")
	require.NoError(t, err)
	var progress models.IndexerProgress
	require.NoError(t, json.Unmarshal(raw, &progress))
	assert.Equal(t, models.PhaseOptimizing, progress.Phase)
	assert.Equal(t, models.StatusCompleted, progress.Status)
	assert.Equal(t, 4, progress.FilesTotal)
	assert.Equal(t, 8, progress.DocumentsIndexed)
}

func TestIndexerRunMissingManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := openStore(t)

	ix := newTestIndexer(t, fs, store)
	err := ix.Run(context.Background())
	require.Error(t, err)

	raw, rerr := afero.ReadFile(fs, "progress/indexer-progress.json")
	require.NoError(t, rerr)
	var progress models.IndexerProgress
	require.NoError(t, json.Unmarshal(raw, &progress))
	assert.Equal(t, models.StatusFailed, progress.Status)
	require.NotEmpty(t, progress.Errors)
	assert.Contains(t, progress.Errors[0], "IDX_MANIFEST_NOT_FOUND")
}

func TestIndexerEmbeddingFailureDegradesToFullText(t *testing.T) {
	fs := afero.NewMemMapFs()
	docsFixture(t, fs)
	store := openStore(t)
	ctx := context.Background()

	ix := newTestIndexer(t, fs, store, WithEmbedder(&stubEmbedder{fail: true}))
	require.NoError(t, ix.Run(ctx), "embedding failure is not fatal")

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 8, counts.Documents)
	assert.Zero(t, counts.Vectors)
}

func TestIndexerSkipEmbeddings(t *testing.T) {
	fs := afero.NewMemMapFs()
	docsFixture(t, fs)
	store := openStore(t)
	embedder := &stubEmbedder{}

	ix := newTestIndexer(t, fs, store, WithEmbedder(embedder), WithSkipEmbeddings(true))
	require.NoError(t, ix.Run(context.Background()))

	assert.Zero(t, embedder.calls, "the embedder is never invoked")
	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Vectors)
}

func TestIndexerDryRunWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	docsFixture(t, fs)
	store := openStore(t)

	ix := newTestIndexer(t, fs, store, WithDryRun(true))
	require.NoError(t, ix.Run(context.Background()))

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Documents)
}

func TestIndexerIncrementalSkipsUnchanged(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := docsFixture(t, fs)
	store := openStore(t)
	ctx := context.Background()

	ix := newTestIndexer(t, fs, store)
	require.NoError(t, ix.Run(ctx))

	const usersPath = "databases/shop/domains/users/tables/public.users.md"
	domainBefore, err := store.GetDocumentByPath(ctx, "databases/shop/domains/users/README.md")
	require.NoError(t, err)
	tableBefore, err := store.GetDocumentByPath(ctx, usersPath)
	require.NoError(t, err)
	colBefore, err := store.GetDocumentByPath(ctx, usersPath+"#email")
	require.NoError(t, err)

	// Change one table; the users table and the domain doc are untouched.
	files["databases/shop/domains/users/tables/public.orders.md"] = ordersMD + "\nExtra note.\n"
	writeFixtureManifest(t, fs, files)
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, "docs/"+path, []byte(content), 0o644))
	}

	inc := newTestIndexer(t, fs, store, WithIncremental(true))
	require.NoError(t, inc.Run(ctx))

	domainAfter, err := store.GetDocumentByPath(ctx, "databases/shop/domains/users/README.md")
	require.NoError(t, err)
	assert.True(t, domainBefore.IndexedAt.Equal(domainAfter.IndexedAt),
		"unchanged domain doc is not rewritten")

	// The unchanged sibling table is re-read for the relationship rebuild
	// but its rows never go back through the store.
	tableAfter, err := store.GetDocumentByPath(ctx, usersPath)
	require.NoError(t, err)
	assert.True(t, tableBefore.IndexedAt.Equal(tableAfter.IndexedAt),
		"unchanged sibling table is not rewritten")
	colAfter, err := store.GetDocumentByPath(ctx, usersPath+"#email")
	require.NoError(t, err)
	assert.True(t, colBefore.IndexedAt.Equal(colAfter.IndexedAt),
		"unchanged column rows are not rewritten")

	changed, err := store.GetDocumentByPath(ctx, "databases/shop/domains/users/tables/public.orders.md")
	require.NoError(t, err)
	assert.Equal(t, models.HashBytes([]byte(files["databases/shop/domains/users/tables/public.orders.md"])), changed.ContentHash)
	assert.True(t, changed.IndexedAt.After(tableAfter.IndexedAt),
		"the changed table is the one that moves")

	// The rebuild still sees the unchanged table's side of the FK edge.
	rels, err := store.ListRelationships(ctx, "shop")
	require.NoError(t, err)
	require.NotEmpty(t, rels)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 8, counts.Documents, "no duplicates on re-index")
}

func TestIndexerIncrementalDeletesVanishedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := docsFixture(t, fs)
	store := openStore(t)
	ctx := context.Background()

	ix := newTestIndexer(t, fs, store)
	require.NoError(t, ix.Run(ctx))

	// Drop the orders table from docs and manifest.
	ordersPath := "databases/shop/domains/users/tables/public.orders.md"
	delete(files, ordersPath)
	require.NoError(t, fs.Remove("docs/"+ordersPath))
	writeFixtureManifest(t, fs, files)

	inc := newTestIndexer(t, fs, store, WithIncremental(true))
	require.NoError(t, inc.Run(ctx))

	_, err := store.GetDocumentByPath(ctx, ordersPath)
	assert.Error(t, err, "deleted table is removed")
	_, err = store.GetDocumentByPath(ctx, ordersPath+"#user_id")
	assert.Error(t, err, "column rows cascade")

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, counts.Documents)
}

func TestIndexerForceClearsFirst(t *testing.T) {
	fs := afero.NewMemMapFs()
	docsFixture(t, fs)
	store := openStore(t)
	ctx := context.Background()

	// Seed a row that the fixture does not contain.
	_, err := store.UpsertDocument(ctx, &search.Document{
		DocType: search.DocTypeTable, Database: "legacy", FilePath: "legacy/t.md",
	})
	require.NoError(t, err)

	ix := newTestIndexer(t, fs, store, WithForce(true))
	require.NoError(t, ix.Run(ctx))

	_, err = store.GetDocumentByPath(ctx, "legacy/t.md")
	assert.Error(t, err, "force drops prior contents")
}

func TestIndexerWorkUnitScope(t *testing.T) {
	fs := afero.NewMemMapFs()
	docsFixture(t, fs)
	store := openStore(t)
	ctx := context.Background()

	ix := newTestIndexer(t, fs, store, WithWorkUnit("shop_users"))
	require.NoError(t, ix.Run(ctx))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	// The overview sits outside the unit subtree.
	assert.Zero(t, counts.ByType[search.DocTypeOverview])
	assert.EqualValues(t, 2, counts.ByType[search.DocTypeTable])
}

func TestIndexerStats(t *testing.T) {
	fs := afero.NewMemMapFs()
	docsFixture(t, fs)
	store := openStore(t)
	ctx := context.Background()

	ix := newTestIndexer(t, fs, store)
	require.NoError(t, ix.Run(ctx))

	counts, meta, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 8, counts.Documents)
	assert.Equal(t, "planhash", meta["plan_hash"])
	assert.NotEmpty(t, meta["last_indexed_at"])
}

func TestIndexerVerify(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := docsFixture(t, fs)
	store := openStore(t)

	// Drift one file, remove another.
	require.NoError(t, afero.WriteFile(fs,
		"docs/databases/shop/overview.md", []byte("# Shop\n\nEdited.\n"), 0o644))
	require.NoError(t, fs.Remove("docs/databases/shop/domains/users/README.md"))

	ix := newTestIndexer(t, fs, store)
	report, err := ix.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(files), report.Total)
	assert.Equal(t, []string{"databases/shop/overview.md"}, report.Drifted)
	assert.Equal(t, []string{"databases/shop/domains/users/README.md"}, report.Missing)
	assert.Equal(t, 2, report.Clean)

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Documents, "verify never writes")
}

func openStore(t *testing.T) search.Store {
	t.Helper()
	store, err := sqlite.Open(sqlite.Config{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
