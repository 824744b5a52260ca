package documenter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	catmock "github.com/hashicorp-forge/schemadoc/pkg/catalog/mock"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

func newTestProcessor(fs afero.Fs) (*TableProcessor, *ArtifactWriter) {
	writer := NewArtifactWriter(fs, "docs", nil)
	doc := NewTableDocumenter(nil, "", writer, 2, nil, nil)
	return NewTableProcessor(doc, writer, nil), writer
}

func usersSpec() models.TableSpec {
	return models.TableSpec{
		FullyQualifiedName: "shop.public.users",
		Schema:             "public",
		Table:              "users",
		Domain:             "users",
	}
}

func connectedMock(t *testing.T) *catmock.Connector {
	t.Helper()
	conn := catmock.New().WithTables(models.TableMetadata{
		Schema:  "public",
		Table:   "users",
		Columns: []models.Column{{Name: "id", Type: "bigint"}},
	})
	require.NoError(t, conn.Connect(context.Background()))
	return conn
}

func TestProcessDocumentsTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	proc, writer := newTestProcessor(fs)
	conn := connectedMock(t).WithSample("public", "users", []catalog.Row{{
		Columns: []string{"id"},
		Values:  []interface{}{int64(1)},
	}})

	result := proc.Process(context.Background(), conn, "shop",
		"databases/shop/domains/users", usersSpec())

	assert.True(t, result.succeeded)
	assert.False(t, result.skipped)
	assert.Empty(t, result.errors)
	assert.True(t, writer.Exists("databases/shop/domains/users", "public", "users"))
	require.Len(t, conn.QueryCalls, 1)
	assert.Equal(t, `SELECT * FROM "public"."users" LIMIT 100`, conn.QueryCalls[0])
}

func TestProcessSkipsExistingArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	proc, writer := newTestProcessor(fs)
	conn := connectedMock(t)

	first := proc.Process(context.Background(), conn, "shop",
		"databases/shop/domains/users", usersSpec())
	require.True(t, first.succeeded)
	require.True(t, writer.Exists("databases/shop/domains/users", "public", "users"))

	second := proc.Process(context.Background(), conn, "shop",
		"databases/shop/domains/users", usersSpec())
	assert.True(t, second.succeeded)
	assert.True(t, second.skipped)
	assert.Len(t, conn.QueryCalls, 1, "skipped tables never touch the database")
}

func TestProcessExtractionFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	proc, _ := newTestProcessor(fs)
	conn := connectedMock(t)
	conn.MetadataErr["public.users"] = errors.New("permission denied for relation users")

	result := proc.Process(context.Background(), conn, "shop",
		"databases/shop/domains/users", usersSpec())

	assert.False(t, result.succeeded)
	assert.False(t, result.connectionLost)
	require.Len(t, result.errors, 1)
	assert.Contains(t, result.errors[0], "DOC_TABLE_EXTRACTION_FAILED")
}

func TestProcessConnectionLost(t *testing.T) {
	fs := afero.NewMemMapFs()
	proc, _ := newTestProcessor(fs)
	conn := connectedMock(t)
	conn.MetadataErr["public.users"] = errors.New("read tcp: connection reset by peer")

	result := proc.Process(context.Background(), conn, "shop",
		"databases/shop/domains/users", usersSpec())

	assert.False(t, result.succeeded)
	assert.True(t, result.connectionLost)
}

func TestProcessSamplingTimeoutDegrades(t *testing.T) {
	fs := afero.NewMemMapFs()
	proc, writer := newTestProcessor(fs)
	proc.sampleTimeout = 20 * time.Millisecond

	conn := connectedMock(t)
	conn.QueryDelay = 500 * time.Millisecond

	result := proc.Process(context.Background(), conn, "shop",
		"databases/shop/domains/users", usersSpec())

	assert.True(t, result.succeeded, "sampling failures never fail the table")
	require.Len(t, result.errors, 1)
	assert.Contains(t, result.errors[0], "DOC_SAMPLING_TIMEOUT")
	assert.True(t, writer.Exists("databases/shop/domains/users", "public", "users"))
}

func TestProcessSamplingErrorDegrades(t *testing.T) {
	fs := afero.NewMemMapFs()
	proc, _ := newTestProcessor(fs)
	conn := connectedMock(t)
	conn.QueryErr = errors.New("relation gone")

	result := proc.Process(context.Background(), conn, "shop",
		"databases/shop/domains/users", usersSpec())

	assert.True(t, result.succeeded)
	require.Len(t, result.errors, 1)
	assert.Contains(t, result.errors[0], "DOC_SAMPLING_FAILED")
}

func TestIsConnectionLost(t *testing.T) {
	assert.False(t, isConnectionLost(nil))
	assert.False(t, isConnectionLost(errors.New("syntax error")))
	assert.True(t, isConnectionLost(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnectionLost(errors.New("unexpected EOF")))
	assert.True(t, isConnectionLost(errors.New("write: broken pipe")))
}
