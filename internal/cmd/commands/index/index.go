// Package index implements the "index" subcommand: build the searchable
// index from the documentation manifest.
package index

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/hashicorp-forge/schemadoc/internal/cmd/base"
	"github.com/hashicorp-forge/schemadoc/pkg/documenter"
	"github.com/hashicorp-forge/schemadoc/pkg/indexer"
	"github.com/hashicorp-forge/schemadoc/pkg/llm"
	"github.com/hashicorp-forge/schemadoc/pkg/search/sqlite"
)

type Command struct {
	*base.Command

	flagDocsRoot       string
	flagProgressDir    string
	flagIndexDir       string
	flagModel          string
	flagIncremental    bool
	flagForce          bool
	flagSkipEmbeddings bool
	flagDryRun         bool
	flagWorkUnit       string
	flagStats          bool
	flagVerify         bool
}

func (c *Command) Synopsis() string {
	return "Build the searchable index from the documentation manifest"
}

func (c *Command) Help() string {
	return `Usage: schemadoc index [options]

Parses the documentation artifacts listed in the manifest, extracts keywords,
generates embeddings, and populates the SQLite/full-text index including
table relationships and multi-hop join paths.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("index", flag.ContinueOnError))
	f.StringVar(&c.flagDocsRoot, "docs-root", documenter.DefaultDocsRoot(),
		"Root directory of the generated documentation")
	f.StringVar(&c.flagProgressDir, "progress-dir", documenter.DefaultProgressDir(),
		"Directory for progress files")
	f.StringVar(&c.flagIndexDir, "index-dir", "index",
		"Directory holding the index database")
	f.StringVar(&c.flagModel, "embedding-model", "",
		"Embedding model (empty uses the provider default)")
	f.BoolVar(&c.flagIncremental, "incremental", false,
		"Only index files that are new or changed since the last run")
	f.BoolVar(&c.flagForce, "force", false, "Clear the index before populating")
	f.BoolVar(&c.flagSkipEmbeddings, "skip-embeddings", false, "Index full-text only")
	f.BoolVar(&c.flagDryRun, "dry-run", false, "Parse and report without writing")
	f.StringVar(&c.flagWorkUnit, "work-unit", "", "Restrict to one work unit's output")
	f.BoolVar(&c.flagStats, "stats", false, "Print index statistics and exit")
	f.BoolVar(&c.flagVerify, "verify", false, "Check manifest files for drift and exit")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()

	opts := []indexer.Option{
		indexer.WithDocsRoot(c.flagDocsRoot),
		indexer.WithProgressDir(c.flagProgressDir),
		indexer.WithLogger(c.Log),
		indexer.WithIncremental(c.flagIncremental),
		indexer.WithForce(c.flagForce),
		indexer.WithSkipEmbeddings(c.flagSkipEmbeddings),
		indexer.WithDryRun(c.flagDryRun),
		indexer.WithWorkUnit(c.flagWorkUnit),
	}

	if !c.flagDryRun || c.flagStats {
		store, err := sqlite.Open(sqlite.Config{Path: c.flagIndexDir, Logger: c.Log})
		if err != nil {
			c.UI.Error(fmt.Sprintf("failed to open index at %s: %v", c.flagIndexDir, err))
			return 1
		}
		defer store.Close()
		opts = append(opts, indexer.WithStore(store))
	}

	if !c.flagSkipEmbeddings && !c.flagDryRun && !c.flagVerify && llm.PrimaryModel() != "" {
		client, err := llm.FromEnv(ctx, "", c.Log)
		if err != nil {
			c.UI.Warn(fmt.Sprintf("embeddings unavailable, indexing full-text only: %v", err))
		} else {
			opts = append(opts, indexer.WithEmbedder(
				llm.NewEmbeddingBatcher(client, c.flagModel, c.Log)))
		}
	}

	ix, err := indexer.New(opts...)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	switch {
	case c.flagStats:
		return c.printStats(ctx, ix)
	case c.flagVerify:
		return c.printVerify(ctx, ix)
	}

	if err := ix.Run(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("indexing failed: %v", err))
		return 1
	}
	c.UI.Output("Index built at " + c.flagIndexDir)
	return 0
}

func (c *Command) printStats(ctx context.Context, ix *indexer.Indexer) int {
	counts, meta, err := ix.Stats(ctx)
	if err != nil {
		c.UI.Error(fmt.Sprintf("failed to read index stats: %v", err))
		return 1
	}

	c.UI.Output(fmt.Sprintf("Documents:     %d", counts.Documents))
	types := make([]string, 0, len(counts.ByType))
	for t := range counts.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		c.UI.Output(fmt.Sprintf("  %-12s %d", t+":", counts.ByType[t]))
	}
	c.UI.Output(fmt.Sprintf("Vectors:       %d", counts.Vectors))
	c.UI.Output(fmt.Sprintf("Relationships: %d", counts.Relationships))
	c.UI.Output(fmt.Sprintf("Keywords:      %d", counts.Keywords))

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.UI.Output(fmt.Sprintf("%s: %s", k, meta[k]))
	}
	return 0
}

func (c *Command) printVerify(ctx context.Context, ix *indexer.Indexer) int {
	report, err := ix.Verify(ctx)
	if err != nil {
		c.UI.Error(fmt.Sprintf("verification failed: %v", err))
		return 1
	}

	c.UI.Output(fmt.Sprintf("Manifest files: %d (%d clean)", report.Total, report.Clean))
	for _, p := range report.Drifted {
		c.UI.Warn("drifted: " + p)
	}
	for _, p := range report.Missing {
		c.UI.Warn("missing: " + p)
	}
	if len(report.Drifted) > 0 || len(report.Missing) > 0 {
		return 1
	}
	return 0
}
