// Package document implements the "document" subcommand: execute the plan
// and emit per-table artifacts plus the manifest.
package document

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hashicorp-forge/schemadoc/internal/cmd/base"
	"github.com/hashicorp-forge/schemadoc/pkg/documenter"
	"github.com/hashicorp-forge/schemadoc/pkg/llm"
)

type Command struct {
	*base.Command

	flagConfig      string
	flagProgressDir string
	flagDocsRoot    string
	flagModel       string
	flagTableBatch  int
	flagColumnBatch int
	flagNoLLM       bool
}

func (c *Command) Synopsis() string {
	return "Execute the documentation plan and write table artifacts"
}

func (c *Command) Help() string {
	return `Usage: schemadoc document -config <catalog.yaml>

Processes the plan's work units in priority order: samples each table,
generates descriptions through the configured LLM, writes Markdown and JSON
artifacts under the docs root, and finishes with the documentation manifest.
SIGINT/SIGTERM trigger a graceful shutdown that still writes a partial
manifest.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("document", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to the database catalog file")
	f.StringVar(&c.flagProgressDir, "progress-dir", documenter.DefaultProgressDir(),
		"Directory holding the plan and progress files")
	f.StringVar(&c.flagDocsRoot, "docs-root", documenter.DefaultDocsRoot(),
		"Root directory for generated documentation")
	f.StringVar(&c.flagModel, "model", "", "Primary LLM model (defaults to LLM_PRIMARY_MODEL)")
	f.IntVar(&c.flagTableBatch, "table-batch", documenter.DefaultTableBatchSize,
		"Tables documented concurrently within a work unit")
	f.IntVar(&c.flagColumnBatch, "column-batch", documenter.DefaultColumnBatchSize,
		"Columns inferred concurrently within a table")
	f.BoolVar(&c.flagNoLLM, "no-llm", false, "Use deterministic fallback descriptions only")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return 1
	}
	if c.flagConfig == "" {
		c.UI.Error("-config is required")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []documenter.Option{
		documenter.WithCatalogPath(c.flagConfig),
		documenter.WithProgressDir(c.flagProgressDir),
		documenter.WithDocsRoot(c.flagDocsRoot),
		documenter.WithTableBatchSize(c.flagTableBatch),
		documenter.WithColumnBatchSize(c.flagColumnBatch),
		documenter.WithLogger(c.Log),
	}

	if !c.flagNoLLM {
		model := c.flagModel
		if model == "" {
			model = llm.PrimaryModel()
		}
		if model != "" {
			client, err := llm.FromEnv(ctx, model, c.Log)
			if err != nil {
				c.UI.Error(fmt.Sprintf("LLM configuration failed: %v", err))
				return 1
			}
			opts = append(opts, documenter.WithLLM(client, model))
		} else {
			c.UI.Warn("no LLM model configured, using fallback descriptions")
		}
	}

	doc, err := documenter.New(opts...)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if err := doc.Run(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("documentation failed: %v", err))
		return 1
	}

	c.UI.Output("Documentation complete; manifest written under " + c.flagDocsRoot)
	return 0
}
