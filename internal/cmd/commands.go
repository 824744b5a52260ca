package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/schemadoc/internal/cmd/base"
	"github.com/hashicorp-forge/schemadoc/internal/cmd/commands/document"
	"github.com/hashicorp-forge/schemadoc/internal/cmd/commands/index"
	"github.com/hashicorp-forge/schemadoc/internal/cmd/commands/plan"
	"github.com/hashicorp-forge/schemadoc/internal/cmd/commands/version"
)

// Commands is the CLI subcommand registry.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := &base.Command{UI: ui, Log: log}

	Commands = map[string]cli.CommandFactory{
		"plan": func() (cli.Command, error) {
			return &plan.Command{Command: b}, nil
		},
		"document": func() (cli.Command, error) {
			return &document.Command{Command: b}, nil
		},
		"index": func() (cli.Command, error) {
			return &index.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
