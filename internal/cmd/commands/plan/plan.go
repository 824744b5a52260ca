// Package plan implements the "plan" subcommand: analyze the catalog and
// write the documentation plan.
package plan

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/schemadoc/internal/cmd/base"
	"github.com/hashicorp-forge/schemadoc/pkg/documenter"
	"github.com/hashicorp-forge/schemadoc/pkg/llm"
	"github.com/hashicorp-forge/schemadoc/pkg/planner"
)

type Command struct {
	*base.Command

	flagConfig      string
	flagProgressDir string
	flagForce       bool
	flagDryRun      bool
	flagNoLLM       bool
}

func (c *Command) Synopsis() string {
	return "Analyze configured databases and write the documentation plan"
}

func (c *Command) Help() string {
	return `Usage: schemadoc plan -config <catalog.yaml>

Connects to every database in the catalog, analyzes schemas, groups tables
into semantic domains, and writes progress/documentation-plan.json. An
existing plan that still matches the catalog and live schemas is kept.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("plan", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to the database catalog file")
	f.StringVar(&c.flagProgressDir, "progress-dir", documenter.DefaultProgressDir(),
		"Directory for the plan and progress files")
	f.BoolVar(&c.flagForce, "force", false, "Replan even when the existing plan is fresh")
	f.BoolVar(&c.flagDryRun, "dry-run", false, "Analyze and report without writing the plan")
	f.BoolVar(&c.flagNoLLM, "no-llm", false, "Use rule-based domain grouping only")
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

	ctx := context.Background()

	var client llm.Client
	if !c.flagNoLLM && llm.PrimaryModel() != "" {
		var err error
		client, err = llm.FromEnv(ctx, "", c.Log)
		if err != nil {
			c.UI.Warn(fmt.Sprintf("LLM unavailable, using rule-based grouping: %v", err))
		}
	}

	plan, err := planner.Run(ctx, planner.Options{
		CatalogPath: c.flagConfig,
		ProgressDir: c.flagProgressDir,
		LLM:         client,
		Logger:      c.Log,
		Force:       c.flagForce,
		DryRun:      c.flagDryRun,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("planning failed: %v", err))
		return 1
	}

	c.UI.Output(fmt.Sprintf("Plan ready: %d databases, %d work units, ~%d tables",
		len(plan.Databases), len(plan.WorkUnits), plan.Summary.TotalTables))
	return 0
}
