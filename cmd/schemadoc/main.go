package main

import (
	"os"

	"github.com/hashicorp-forge/schemadoc/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
