// Package docid derives deterministic identities for indexed documents.
//
// Embeddings are generated before documents receive surrogate ids, so the
// identity string is both the batch key handed to the embedding client and
// the lookup key when vectors are attached during population. Identities are
// schema-preserving and independent of file paths:
//
//	table:        {database}.{schema}.{table}
//	column:       {database}.{schema}.{table}.{column}
//	domain:       {database}.{domain}
//	relationship: {database}.{source}_to_{target}
//	overview:     {database}.overview
//
// Relationship identities support prefix matching because the full target
// may not be known at lookup time.
package docid

import (
	"fmt"
	"strings"
)

// Document types recognized by the index.
const (
	TypeTable        = "table"
	TypeColumn       = "column"
	TypeDomain       = "domain"
	TypeRelationship = "relationship"
	TypeOverview     = "overview"
)

// Identity is a parsed document identity.
type Identity struct {
	DocType  string
	Database string
	Schema   string
	Table    string
	Column   string
	Domain   string
	// Source/Target are set for relationship identities.
	Source string
	Target string
}

// Table builds a table identity.
func Table(database, schema, table string) Identity {
	return Identity{DocType: TypeTable, Database: database, Schema: schema, Table: table}
}

// Column builds a column identity.
func Column(database, schema, table, column string) Identity {
	return Identity{DocType: TypeColumn, Database: database, Schema: schema, Table: table, Column: column}
}

// Domain builds a domain identity.
func Domain(database, domain string) Identity {
	return Identity{DocType: TypeDomain, Database: database, Domain: domain}
}

// Relationship builds a relationship identity from source and target table
// names.
func Relationship(database, source, target string) Identity {
	return Identity{DocType: TypeRelationship, Database: database, Source: source, Target: target}
}

// Overview builds a database overview identity.
func Overview(database string) Identity {
	return Identity{DocType: TypeOverview, Database: database}
}

// String renders the canonical identity key.
func (id Identity) String() string {
	switch id.DocType {
	case TypeTable:
		return fmt.Sprintf("%s.%s.%s", id.Database, id.Schema, id.Table)
	case TypeColumn:
		return fmt.Sprintf("%s.%s.%s.%s", id.Database, id.Schema, id.Table, id.Column)
	case TypeDomain:
		return fmt.Sprintf("%s.%s", id.Database, id.Domain)
	case TypeRelationship:
		return fmt.Sprintf("%s.%s_to_%s", id.Database, id.Source, id.Target)
	case TypeOverview:
		return fmt.Sprintf("%s.overview", id.Database)
	default:
		return ""
	}
}

// Prefix returns the prefix-match key for relationship identities whose full
// target is not yet known: "{database}.{source}_to_".
func (id Identity) Prefix() string {
	if id.DocType != TypeRelationship {
		return id.String()
	}
	return fmt.Sprintf("%s.%s_to_", id.Database, id.Source)
}

// IsZero reports whether the identity has no document type.
func (id Identity) IsZero() bool { return id.DocType == "" }

// Lookup resolves an identity key within a map of identity-keyed values.
// Exact matches win; relationship identities fall back to prefix matching.
func Lookup[V any](m map[string]V, id Identity) (V, bool) {
	if v, ok := m[id.String()]; ok {
		return v, true
	}
	if id.DocType == TypeRelationship {
		prefix := id.Prefix()
		for k, v := range m {
			if strings.HasPrefix(k, prefix) {
				return v, true
			}
		}
	}
	var zero V
	return zero, false
}
