package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// maxHops caps multi-hop path discovery.
const maxHops = 3

// directConfidence values for relationship sources.
const (
	fkConfidence         = 1.0
	documentedConfidence = 0.9
)

// tableRef identifies one table endpoint in the relationship graph.
type tableRef struct {
	Schema string
	Table  string
}

func (r tableRef) String() string { return r.Schema + "." + r.Table }

// graphEdge is one direct edge with the columns that join it.
type graphEdge struct {
	Source       tableRef
	SourceColumn string
	Target       tableRef
	TargetColumn string
	Type         string
	Confidence   float64
}

// BuildRelationships derives direct edges from parsed documents and stores
// them together with BFS-computed multi-hop paths.
func BuildRelationships(ctx context.Context, store search.Store, docs []*ParsedDocument, logger hclog.Logger) (int, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	byDatabase := map[string][]graphEdge{}
	for _, doc := range docs {
		for _, e := range directEdges(doc) {
			byDatabase[doc.Database] = append(byDatabase[doc.Database], e)
		}
	}

	total := 0
	for database, edges := range byDatabase {
		edges = dedupeEdges(edges)
		stored, err := storeDatabaseRelationships(ctx, store, database, edges)
		if err != nil {
			return total, err
		}
		total += stored
		logger.Info("relationships stored", "database", database, "edges", stored)
	}
	return total, nil
}

// directEdges extracts the direct edges one document contributes: foreign
// keys from table documents at full confidence, documented edges from
// relationship documents slightly below.
func directEdges(doc *ParsedDocument) []graphEdge {
	var edges []graphEdge
	switch doc.DocType {
	case search.DocTypeTable:
		for _, fk := range doc.ForeignKeys {
			target := tableRef{Schema: fk.TargetSchema, Table: fk.TargetTable}
			if target.Schema == "" {
				target.Schema = doc.Schema
			}
			edges = append(edges, graphEdge{
				Source:       tableRef{Schema: doc.Schema, Table: doc.Table},
				SourceColumn: fk.SourceColumn,
				Target:       target,
				TargetColumn: fk.TargetColumn,
				Type:         search.RelForeignKey,
				Confidence:   fkConfidence,
			})
		}
	case search.DocTypeRelationship:
		for _, e := range doc.Edges {
			edges = append(edges, graphEdge{
				Source:       tableRef{Schema: e.SourceSchema, Table: e.SourceTable},
				SourceColumn: e.SourceColumn,
				Target:       tableRef{Schema: e.TargetSchema, Table: e.TargetTable},
				TargetColumn: e.TargetColumn,
				Type:         search.RelDocumented,
				Confidence:   documentedConfidence,
			})
		}
	}
	return edges
}

// dedupeEdges keeps one edge per (source, target, columns) pair; the
// higher-confidence source wins.
func dedupeEdges(edges []graphEdge) []graphEdge {
	best := map[string]graphEdge{}
	var order []string
	for _, e := range edges {
		key := fmt.Sprintf("%s.%s>%s.%s", e.Source, e.SourceColumn, e.Target, e.TargetColumn)
		if existing, ok := best[key]; !ok {
			best[key] = e
			order = append(order, key)
		} else if e.Confidence > existing.Confidence {
			best[key] = e
		}
	}
	out := make([]graphEdge, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func storeDatabaseRelationships(ctx context.Context, store search.Store, database string, edges []graphEdge) (int, error) {
	stored := 0
	err := store.Transaction(ctx, func(tx search.Store) error {
		// Rebuild from scratch: clear every table touched by the new edge set
		// so edges that no longer exist do not linger.
		cleared := map[tableRef]bool{}
		for _, e := range edges {
			for _, ref := range []tableRef{e.Source, e.Target} {
				if cleared[ref] {
					continue
				}
				cleared[ref] = true
				if err := tx.DeleteRelationshipsForTable(ctx, database, ref.Schema, ref.Table); err != nil {
					return agenterr.Fatal(agenterr.CodeFatal,
						"failed to clear relationships for %s", ref).Wrap(err)
				}
			}
		}

		for _, e := range edges {
			rel := &search.Relationship{
				Database:         database,
				SourceSchema:     e.Source.Schema,
				SourceTable:      e.Source.Table,
				SourceColumn:     e.SourceColumn,
				TargetSchema:     e.Target.Schema,
				TargetTable:      e.Target.Table,
				TargetColumn:     e.TargetColumn,
				RelationshipType: e.Type,
				HopCount:         1,
				JoinExpression:   singleHopJoin(e),
				Confidence:       e.Confidence,
			}
			if err := tx.UpsertRelationship(ctx, rel); err != nil {
				return agenterr.Fatal(agenterr.CodeFatal,
					"failed to store relationship %s to %s", e.Source, e.Target).Wrap(err)
			}
			stored++
		}

		for _, rel := range computeMultiHop(edges) {
			rel.Database = database
			if err := tx.UpsertRelationship(ctx, rel); err != nil {
				return agenterr.Fatal(agenterr.CodeFatal,
					"failed to store computed relationship").Wrap(err)
			}
			stored++
		}
		return nil
	})
	return stored, err
}

// singleHopJoin renders the SQL join for a direct edge.
func singleHopJoin(e graphEdge) string {
	return fmt.Sprintf("JOIN %s ON %s.%s = %s.%s",
		e.Target, e.Source, e.SourceColumn, e.Target, e.TargetColumn)
}

// computeMultiHop finds join paths of length 2..maxHops between every
// ordered pair of distinct tables, over a bidirectional adjacency map.
// Confidence decays with hop count, floored at 0.1.
func computeMultiHop(edges []graphEdge) []*search.Relationship {
	adjacency := map[tableRef][]pathHop{}
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], pathHop{next: e.Target, forward: e})
		adjacency[e.Target] = append(adjacency[e.Target], pathHop{next: e.Source, forward: e})
	}

	tables := make([]tableRef, 0, len(adjacency))
	for ref := range adjacency {
		tables = append(tables, ref)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].String() < tables[j].String() })

	var out []*search.Relationship
	for _, source := range tables {
		paths := shortestPaths(adjacency, source)
		for _, target := range tables {
			if target == source {
				continue
			}
			path, ok := paths[target]
			if !ok || len(path) <= 1 {
				continue
			}
			first, last := path[0].forward, path[len(path)-1].forward
			out = append(out, &search.Relationship{
				SourceSchema:     source.Schema,
				SourceTable:      source.Table,
				SourceColumn:     joinColumn(first, source),
				TargetSchema:     target.Schema,
				TargetTable:      target.Table,
				TargetColumn:     joinColumn(last, target),
				RelationshipType: search.RelComputed,
				HopCount:         len(path),
				JoinExpression:   multiHopJoin(source, path),
				Confidence:       hopConfidence(len(path)),
			})
		}
	}
	return out
}

// pathHop is one traversal step: the table reached and the direct edge that
// reached it, in its stored orientation.
type pathHop struct {
	next    tableRef
	forward graphEdge
}

// shortestPaths runs BFS from source, capped at maxHops, recording the hop
// sequence to each reachable table.
func shortestPaths(adjacency map[tableRef][]pathHop, source tableRef) map[tableRef][]pathHop {
	paths := map[tableRef][]pathHop{source: {}}
	frontier := []tableRef{source}
	for depth := 0; depth < maxHops && len(frontier) > 0; depth++ {
		var next []tableRef
		for _, ref := range frontier {
			for _, h := range adjacency[ref] {
				if _, seen := paths[h.next]; seen {
					continue
				}
				path := append(append([]pathHop{}, paths[ref]...), pathHop{next: h.next, forward: h.forward})
				paths[h.next] = path
				next = append(next, h.next)
			}
		}
		frontier = next
	}
	return paths
}

// joinColumn picks the column on the given endpoint of an edge, accounting
// for traversal direction.
func joinColumn(e graphEdge, endpoint tableRef) string {
	if e.Source == endpoint {
		return e.SourceColumn
	}
	return e.TargetColumn
}

// multiHopJoin renders the chained join expression for a path.
func multiHopJoin(source tableRef, path []pathHop) string {
	var b strings.Builder
	current := source
	for _, h := range path {
		e := h.forward
		if e.Source == current {
			fmt.Fprintf(&b, "JOIN %s ON %s.%s = %s.%s ",
				e.Target, e.Source, e.SourceColumn, e.Target, e.TargetColumn)
		} else {
			fmt.Fprintf(&b, "JOIN %s ON %s.%s = %s.%s ",
				e.Source, e.Target, e.TargetColumn, e.Source, e.SourceColumn)
		}
		current = h.next
	}
	return strings.TrimSpace(b.String())
}

// hopConfidence decays confidence by 0.15 per extra hop, floored at 0.1.
func hopConfidence(hops int) float64 {
	c := 1.0 - 0.15*float64(hops-1)
	if c < 0.1 {
		return 0.1
	}
	return c
}
