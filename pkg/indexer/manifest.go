package indexer

import (
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/documenter"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// WorkingSet is the validated manifest plus the files the indexer will
// actually process.
type WorkingSet struct {
	Manifest *models.Manifest

	// Files are the manifest entries that exist on disk. Entries whose
	// content no longer matches the manifest hash are kept (they re-index)
	// with Changed set.
	Files []WorkingFile

	// Missing lists manifest paths excluded because the file is gone.
	Missing []string
}

// WorkingFile pairs a manifest entry with its drift state.
type WorkingFile struct {
	models.IndexableFile

	// Changed is set when the on-disk content hash no longer matches the
	// manifest. ActualHash carries the current hash.
	Changed    bool
	ActualHash string
}

// LoadManifest reads and validates the documentation manifest per the
// indexer's acceptance rules.
func LoadManifest(fs afero.Fs, docsRoot string) (*models.Manifest, error) {
	manifestPath := path.Join(docsRoot, documenter.ManifestFileName)
	raw, err := afero.ReadFile(fs, manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, agenterr.Fatal(agenterr.CodeManifestNotFound,
				"documentation manifest not found at %s", manifestPath).Wrap(err)
		}
		return nil, agenterr.Fatal(agenterr.CodeManifestNotFound,
			"documentation manifest unreadable at %s", manifestPath).Wrap(err)
	}

	var manifest models.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, agenterr.Fatal(agenterr.CodeManifestInvalid,
			"documentation manifest is not valid JSON").Wrap(err)
	}
	if manifest.SchemaVersion != models.ManifestSchemaVersion {
		return nil, agenterr.Fatal(agenterr.CodeManifestInvalid,
			"unsupported manifest schema version %q", manifest.SchemaVersion)
	}
	if manifest.Status != models.ManifestComplete && manifest.Status != models.ManifestPartial {
		return nil, agenterr.Fatal(agenterr.CodeManifestInvalid,
			"manifest status %q is not indexable", manifest.Status)
	}
	if len(manifest.IndexableFiles) == 0 {
		return nil, agenterr.Fatal(agenterr.CodeManifestInvalid,
			"manifest lists no indexable files")
	}
	return &manifest, nil
}

// BuildWorkingSet verifies every manifest entry against the docs root.
// Missing files are excluded with a warning; hash drift is a warning and the
// file re-indexes with its current content.
func BuildWorkingSet(fs afero.Fs, docsRoot string, manifest *models.Manifest, workUnit string, logger hclog.Logger) (*WorkingSet, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	unitPrefix := workUnitPrefix(manifest, workUnit)
	if workUnit != "" && unitPrefix == "" {
		return nil, agenterr.Fatal(agenterr.CodeManifestInvalid,
			"work unit %s is not in the manifest", workUnit)
	}

	ws := &WorkingSet{Manifest: manifest}
	for _, entry := range manifest.IndexableFiles {
		if unitPrefix != "" && !strings.HasPrefix(entry.Path, unitPrefix) {
			continue
		}

		full := path.Join(docsRoot, entry.Path)
		content, err := afero.ReadFile(fs, full)
		if err != nil {
			logger.Warn("manifest file missing, excluding", "path", entry.Path, "error", err)
			ws.Missing = append(ws.Missing, entry.Path)
			continue
		}

		wf := WorkingFile{IndexableFile: entry, ActualHash: models.HashBytes(content)}
		if wf.ActualHash != entry.ContentHash {
			logger.Warn("manifest hash drift, file will re-index",
				"path", entry.Path,
				"manifest_hash", entry.ContentHash,
				"actual_hash", wf.ActualHash,
			)
			wf.Changed = true
		}
		ws.Files = append(ws.Files, wf)
	}
	return ws, nil
}

// workUnitPrefix resolves a work unit id ({database}_{domain}) to its output
// subtree. Database names may themselves contain underscores, so the split is
// anchored on the databases the manifest knows.
func workUnitPrefix(manifest *models.Manifest, workUnit string) string {
	if workUnit == "" {
		return ""
	}
	for _, db := range manifest.Databases {
		if strings.HasPrefix(workUnit, db.Name+"_") {
			domain := strings.TrimPrefix(workUnit, db.Name+"_")
			return "databases/" + db.Name + "/domains/" + domain + "/"
		}
	}
	return ""
}
