package planner

import (
	"sort"

	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// coreDomains get priority 1 and schedule ahead of everything else.
var coreDomains = map[string]bool{
	"customers": true,
	"users":     true,
	"orders":    true,
	"products":  true,
}

// systemDomains get priority 3.
var systemDomains = map[string]bool{
	"system":        true,
	"audit":         true,
	"logs":          true,
	"migrations":    true,
	"other":         true,
	"uncategorized": true,
}

// tablePriority derives a table's priority from its domain and how many
// foreign keys point at it.
func tablePriority(domain string, incomingFKCount int) int {
	if coreDomains[domain] || incomingFKCount >= 3 {
		return 1
	}
	if systemDomains[domain] {
		return 3
	}
	return 2
}

// estimatedMinutes converts a table count into a whole-minute estimate:
// 30 seconds of fixed cost plus 40 seconds per table, rounded up.
func estimatedMinutes(tableCount int) int {
	seconds := 30 + 40*tableCount
	return (seconds + 59) / 60
}

// buildWorkUnits groups one database's table specs by domain into work
// units. Tables within a unit are ordered by priority ascending, then table
// name ascending.
func buildWorkUnits(database string, specs []models.TableSpec) []models.WorkUnit {
	byDomain := map[string][]models.TableSpec{}
	for _, spec := range specs {
		byDomain[spec.Domain] = append(byDomain[spec.Domain], spec)
	}

	units := make([]models.WorkUnit, 0, len(byDomain))
	for domain, tables := range byDomain {
		sort.Slice(tables, func(i, j int) bool {
			if tables[i].Priority != tables[j].Priority {
				return tables[i].Priority < tables[j].Priority
			}
			return tables[i].Table < tables[j].Table
		})

		unit := models.WorkUnit{
			Database:         database,
			Domain:           domain,
			Tables:           tables,
			EstimatedMinutes: estimatedMinutes(len(tables)),
			DependsOn:        []string{},
			ContentHash:      models.WorkUnitContentHash(tables),
		}
		unit.ID = unit.ExpectedID()
		unit.OutputDirectory = unit.ExpectedOutputDirectory()
		units = append(units, unit)
	}
	return units
}

// orderWorkUnits sorts units (core domains first, then table count
// descending, then id ascending) and renumbers priority_order from 1.
func orderWorkUnits(units []models.WorkUnit) {
	sort.Slice(units, func(i, j int) bool {
		ci, cj := coreDomains[units[i].Domain], coreDomains[units[j].Domain]
		if ci != cj {
			return ci
		}
		if len(units[i].Tables) != len(units[j].Tables) {
			return len(units[i].Tables) > len(units[j].Tables)
		}
		return units[i].ID < units[j].ID
	})
	for i := range units {
		units[i].PriorityOrder = i + 1
	}
}

// recommendedParallelism caps worker fan-out at four units.
func recommendedParallelism(unitCount int) int {
	if unitCount < 4 {
		return unitCount
	}
	return 4
}
