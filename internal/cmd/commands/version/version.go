// Package version implements the "version" subcommand.
package version

import (
	"github.com/hashicorp-forge/schemadoc/internal/cmd/base"
	"github.com/hashicorp-forge/schemadoc/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the schemadoc version"
}

func (c *Command) Help() string {
	return "Usage: schemadoc version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output("schemadoc " + version.Version)
	return 0
}
