package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

func TestTablePriority(t *testing.T) {
	tests := []struct {
		name       string
		domain     string
		incomingFK int
		want       int
	}{
		{"core domain", "users", 0, 1},
		{"core domain orders", "orders", 0, 1},
		{"hub table in ordinary domain", "billing", 3, 1},
		{"hub table in system domain", "logs", 5, 1},
		{"system domain", "audit", 0, 3},
		{"uncategorized", "uncategorized", 2, 3},
		{"ordinary domain", "billing", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tablePriority(tt.domain, tt.incomingFK))
		})
	}
}

func TestEstimatedMinutes(t *testing.T) {
	assert.Equal(t, 2, estimatedMinutes(1))  // 70s
	assert.Equal(t, 3, estimatedMinutes(3))  // 150s
	assert.Equal(t, 8, estimatedMinutes(10)) // 430s
	assert.Equal(t, 1, estimatedMinutes(0))  // 30s
}

func TestRecommendedParallelism(t *testing.T) {
	assert.Equal(t, 0, recommendedParallelism(0))
	assert.Equal(t, 2, recommendedParallelism(2))
	assert.Equal(t, 4, recommendedParallelism(4))
	assert.Equal(t, 4, recommendedParallelism(9))
}

func spec(table, domain string, priority int) models.TableSpec {
	return models.TableSpec{
		FullyQualifiedName: "public." + table,
		Schema:             "public",
		Table:              table,
		Domain:             domain,
		Priority:           priority,
		MetadataHash:       models.ZeroHash,
	}
}

func TestBuildWorkUnitsGroupsByDomain(t *testing.T) {
	units := buildWorkUnits("shop", []models.TableSpec{
		spec("users", "users", 1),
		spec("orders", "orders", 1),
		spec("order_items", "orders", 2),
		spec("addresses", "users", 2),
	})
	require.Len(t, units, 2)

	byID := map[string]models.WorkUnit{}
	for _, u := range units {
		byID[u.ID] = u
	}

	users := byID["shop_users"]
	require.Len(t, users.Tables, 2)
	assert.Equal(t, "databases/shop/domains/users", users.OutputDirectory)
	assert.Equal(t, "users", users.Tables[0].Table, "priority 1 first")
	assert.Equal(t, "addresses", users.Tables[1].Table)
	assert.Equal(t, models.WorkUnitContentHash(users.Tables), users.ContentHash)
	assert.Equal(t, 2, users.EstimatedMinutes)
}

func TestBuildWorkUnitsOrdersTablesByPriorityThenName(t *testing.T) {
	units := buildWorkUnits("shop", []models.TableSpec{
		spec("zebra", "billing", 1),
		spec("alpha", "billing", 2),
		spec("beta", "billing", 1),
	})
	require.Len(t, units, 1)
	got := []string{}
	for _, ts := range units[0].Tables {
		got = append(got, ts.Table)
	}
	assert.Equal(t, []string{"beta", "zebra", "alpha"}, got)
}

func TestOrderWorkUnits(t *testing.T) {
	units := []models.WorkUnit{
		{ID: "shop_logs", Domain: "logs", Tables: make([]models.TableSpec, 5)},
		{ID: "shop_users", Domain: "users", Tables: make([]models.TableSpec, 1)},
		{ID: "shop_billing", Domain: "billing", Tables: make([]models.TableSpec, 5)},
		{ID: "shop_orders", Domain: "orders", Tables: make([]models.TableSpec, 3)},
	}
	orderWorkUnits(units)

	got := []string{}
	for _, u := range units {
		got = append(got, u.ID)
	}
	// Core domains first (bigger unit first), then the rest by size, id.
	assert.Equal(t, []string{"shop_orders", "shop_users", "shop_billing", "shop_logs"}, got)

	for i, u := range units {
		assert.Equal(t, i+1, u.PriorityOrder)
	}
}
