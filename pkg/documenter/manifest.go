package documenter

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/safefile"
)

// ManifestFileName is the manifest's location under the docs root.
const ManifestFileName = "documentation-manifest.json"

// tablePathPattern classifies per-table artifacts:
// databases/{db}/domains/{domain}/tables/{schema}.{table}.{md|json}
var tablePathPattern = regexp.MustCompile(`^databases/([^/]+)/domains/([^/]+)/tables/([^/]+)\.(md|json)$`)

// domainPathPattern classifies other files inside a domain subtree.
var domainPathPattern = regexp.MustCompile(`^databases/([^/]+)/domains/([^/]+)/`)

// overviewPathPattern classifies database overview documents.
var overviewPathPattern = regexp.MustCompile(`^databases/([^/]+)/overview\.(md|json)$`)

// ManifestGenerator walks the docs root and emits the manifest the indexer
// consumes.
type ManifestGenerator struct {
	fs       afero.Fs
	docsRoot string
	logger   hclog.Logger
	now      func() time.Time
}

// NewManifestGenerator creates a generator over the docs root.
func NewManifestGenerator(fs afero.Fs, docsRoot string, logger hclog.Logger, now func() time.Time) *ManifestGenerator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &ManifestGenerator{fs: fs, docsRoot: docsRoot, logger: logger.Named("manifest"), now: now}
}

// Generate walks, hashes, classifies, aggregates, and atomically writes the
// manifest. A manifest write failure is fatal.
func (g *ManifestGenerator) Generate(plan *models.DocumentationPlan, progress *models.DocumenterProgress, planHash string) (*models.Manifest, error) {
	files, err := g.collectFiles()
	if err != nil {
		return nil, agenterr.Fatal(agenterr.CodeManifestWriteFailed,
			"failed to walk documentation root %s", g.docsRoot).Wrap(err)
	}

	overall := progress.OverallStatus()
	status := models.ManifestPartial
	if overall == models.StatusCompleted {
		status = models.ManifestComplete
	}

	manifest := &models.Manifest{
		SchemaVersion:  models.ManifestSchemaVersion,
		CompletedAt:    g.now().UTC().Format(time.RFC3339),
		PlanHash:       planHash,
		Status:         status,
		Databases:      aggregateDatabases(files),
		WorkUnits:      aggregateWorkUnits(plan, progress, files),
		TotalFiles:     len(files),
		IndexableFiles: files,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, agenterr.Fatal(agenterr.CodeManifestWriteFailed,
			"failed to encode manifest").Wrap(err)
	}
	if err := safefile.WriteFile(g.fs, path.Join(g.docsRoot, ManifestFileName), data); err != nil {
		return nil, agenterr.Fatal(agenterr.CodeManifestWriteFailed,
			"failed to write manifest").Wrap(err)
	}

	g.logger.Info("manifest written",
		"status", manifest.Status,
		"files", manifest.TotalFiles,
	)
	return manifest, nil
}

// collectFiles walks the docs root for .md and .json artifacts, hashing and
// classifying each. Paths in the manifest are relative to the docs root with
// forward slashes.
func (g *ManifestGenerator) collectFiles() ([]models.IndexableFile, error) {
	var files []models.IndexableFile

	exists, err := afero.DirExists(g.fs, g.docsRoot)
	if err != nil {
		return nil, err
	}
	if !exists {
		return files, nil
	}

	err = afero.Walk(g.fs, g.docsRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := path.Ext(p)
		if ext != ".md" && ext != ".json" {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), filepath.ToSlash(g.docsRoot))
		rel = strings.TrimPrefix(rel, "/")
		if rel == ManifestFileName || strings.HasSuffix(rel, ".tmp") {
			return nil
		}

		content, err := afero.ReadFile(g.fs, p)
		if err != nil {
			g.logger.Warn("unreadable file excluded from manifest", "path", rel, "error", err)
			return nil
		}

		file := models.IndexableFile{
			Path:        rel,
			ContentHash: models.HashBytes(content),
			SizeBytes:   int64(len(content)),
			ModifiedAt:  info.ModTime().UTC().Format(time.RFC3339),
		}
		classifyFile(&file)
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// classifyFile fills Type, Database, Schema, Table, and Domain from the path
// shape.
func classifyFile(f *models.IndexableFile) {
	if m := tablePathPattern.FindStringSubmatch(f.Path); m != nil {
		f.Type = models.FileTypeTable
		f.Database = m[1]
		f.Domain = m[2]
		base := m[3]
		if i := strings.Index(base, "."); i > 0 {
			f.Schema = base[:i]
			f.Table = base[i+1:]
		} else {
			f.Table = base
		}
		return
	}
	if m := overviewPathPattern.FindStringSubmatch(f.Path); m != nil {
		f.Type = models.FileTypeOverview
		f.Database = m[1]
		return
	}
	if m := domainPathPattern.FindStringSubmatch(f.Path); m != nil {
		f.Database = m[1]
		f.Domain = m[2]
		if strings.Contains(strings.ToLower(path.Base(f.Path)), "relationship") {
			f.Type = models.FileTypeRelationship
		} else {
			f.Type = models.FileTypeDomain
		}
		return
	}
	// Anything else under the docs root is best-effort domain documentation.
	f.Type = models.FileTypeDomain
}

// aggregateDatabases rolls files up per database.
func aggregateDatabases(files []models.IndexableFile) []models.ManifestDatabase {
	byName := map[string]*models.ManifestDatabase{}
	var order []string
	tablesSeen := map[string]map[string]bool{}

	for _, f := range files {
		if f.Database == "" {
			continue
		}
		db, ok := byName[f.Database]
		if !ok {
			db = &models.ManifestDatabase{Name: f.Database}
			byName[f.Database] = db
			order = append(order, f.Database)
			tablesSeen[f.Database] = map[string]bool{}
		}
		db.FileCount++
		if f.Type == models.FileTypeTable {
			key := f.Schema + "." + f.Table
			if !tablesSeen[f.Database][key] {
				tablesSeen[f.Database][key] = true
				db.TableCount++
			}
		}
	}

	sort.Strings(order)
	out := make([]models.ManifestDatabase, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// aggregateWorkUnits rolls files up per work unit, including the per-unit
// output hash.
func aggregateWorkUnits(plan *models.DocumentationPlan, progress *models.DocumenterProgress, files []models.IndexableFile) []models.ManifestWorkUnit {
	out := make([]models.ManifestWorkUnit, 0, len(plan.WorkUnits))
	for _, unit := range plan.WorkUnits {
		prefix := unit.OutputDirectory + "/"
		var unitFiles []models.IndexableFile
		for _, f := range files {
			if strings.HasPrefix(f.Path, prefix) {
				unitFiles = append(unitFiles, f)
			}
		}

		status := models.StatusPending
		if up := progress.Unit(unit.ID); up != nil {
			status = up.Status
		}
		out = append(out, models.ManifestWorkUnit{
			ID:         unit.ID,
			Status:     status,
			FileCount:  len(unitFiles),
			OutputHash: models.OutputHash(unitFiles),
		})
	}
	return out
}
