//go:build integration
// +build integration

package catalog

import (
	"os"
	"testing"
)

// TestMain is the entry point for catalog integration tests. These tests
// start a throwaway Postgres container and need a working Docker socket.
func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
