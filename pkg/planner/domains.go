package planner

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/llm"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/naming"
)

//go:embed templates/domain-grouping.tmpl
var domainTemplateFS embed.FS

// domainAlphabet is the closed set of domain names the classifier may
// produce. Anything outside it collapses to "other".
var domainAlphabet = []string{
	"customers",
	"users",
	"orders",
	"products",
	"payments",
	"billing",
	"inventory",
	"shipping",
	"marketing",
	"analytics",
	"auth",
	"support",
	"content",
	"reference",
	"system",
	"audit",
	"logs",
	"migrations",
	"other",
}

// keywordDomains maps expanded name tokens to domains for the rule-based
// fallback.
var keywordDomains = map[string]string{
	"customer":       "customers",
	"user":           "users",
	"account":        "users",
	"profile":        "users",
	"order":          "orders",
	"cart":           "orders",
	"checkout":       "orders",
	"product":        "products",
	"sku":            "products",
	"category":       "products",
	"payment":        "payments",
	"transaction":    "payments",
	"refund":         "payments",
	"invoice":        "billing",
	"billing":        "billing",
	"subscription":   "billing",
	"inventory":      "inventory",
	"stock":          "inventory",
	"warehouse":      "inventory",
	"shipment":       "shipping",
	"shipping":       "shipping",
	"delivery":       "shipping",
	"campaign":       "marketing",
	"promotion":      "marketing",
	"coupon":         "marketing",
	"event":          "analytics",
	"metric":         "analytics",
	"report":         "analytics",
	"session":        "auth",
	"token":          "auth",
	"permission":     "auth",
	"role":           "auth",
	"ticket":         "support",
	"message":        "support",
	"notification":   "support",
	"page":           "content",
	"article":        "content",
	"comment":        "content",
	"lookup":         "reference",
	"country":        "reference",
	"currency":       "reference",
	"log":            "logs",
	"audit":          "audit",
	"migration":      "migrations",
	"migrations":     "migrations",
	"system":         "system",
	"config":         "system",
	"setting":        "system",
	"job":            "system",
	"queue":          "system",
	"temporary":      "system",
	"authentication": "auth",
}

// DomainInferencer assigns every table to a business domain: LLM batches
// first when enabled, rule-based classification as the fallback.
type DomainInferencer struct {
	client    llm.Client
	model     string
	batchSize int
	logger    hclog.Logger

	tmpl *template.Template
}

// NewDomainInferencer builds an inferencer. A nil client disables the LLM
// path entirely.
func NewDomainInferencer(client llm.Client, model string, batchSize int, logger hclog.Logger) (*DomainInferencer, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	tmpl, err := template.ParseFS(domainTemplateFS, "templates/domain-grouping.tmpl")
	if err != nil {
		return nil, err
	}

	return &DomainInferencer{
		client:    client,
		model:     model,
		batchSize: batchSize,
		logger:    logger.Named("domains"),
		tmpl:      tmpl,
	}, nil
}

// Infer maps every table's fully qualified name to a domain. incomingFK
// feeds the fallback's clustering step. No table is left unassigned; the
// last resort is "uncategorized".
func (d *DomainInferencer) Infer(ctx context.Context, database string, tables []models.TableMetadata) map[string]string {
	assigned := map[string]string{}

	if d.client != nil {
		for start := 0; start < len(tables); start += d.batchSize {
			end := start + d.batchSize
			if end > len(tables) {
				end = len(tables)
			}
			batch := tables[start:end]

			result, err := d.inferBatch(ctx, database, batch)
			if err != nil {
				d.logger.Warn("llm domain inference failed, using rules for batch",
					"database", database,
					"batch_start", start,
					"error", err,
				)
				continue
			}
			for name, domain := range result {
				assigned[name] = domain
			}
		}
	}

	// Rule-based pass for anything the LLM missed (or everything when
	// inference is disabled).
	for _, md := range tables {
		fqn := md.FullyQualifiedName()
		if _, ok := assigned[fqn]; ok {
			continue
		}
		if domain := ruleDomain(&md); domain != "" {
			assigned[fqn] = domain
		}
	}

	// FK clustering: an unassigned table adopts the domain its foreign keys
	// point at most often.
	for _, md := range tables {
		fqn := md.FullyQualifiedName()
		if _, ok := assigned[fqn]; ok {
			continue
		}
		if domain := clusterByForeignKeys(&md, assigned); domain != "" {
			assigned[fqn] = domain
		}
	}

	for _, md := range tables {
		fqn := md.FullyQualifiedName()
		if _, ok := assigned[fqn]; !ok {
			assigned[fqn] = "uncategorized"
		}
	}
	return assigned
}

// promptTable is one table row rendered into the grouping prompt.
type promptTable struct {
	Name        string
	Columns     string
	ForeignKeys string
}

func (d *DomainInferencer) inferBatch(ctx context.Context, database string, batch []models.TableMetadata) (map[string]string, error) {
	rows := make([]promptTable, 0, len(batch))
	for _, md := range batch {
		cols := make([]string, 0, len(md.Columns))
		for i, c := range md.Columns {
			if i >= 8 {
				cols = append(cols, "...")
				break
			}
			cols = append(cols, c.Name)
		}
		fks := make([]string, 0, len(md.ForeignKeys))
		for _, fk := range md.ForeignKeys {
			fks = append(fks, fk.TargetSchema+"."+fk.TargetTable)
		}
		rows = append(rows, promptTable{
			Name:        md.FullyQualifiedName(),
			Columns:     strings.Join(cols, ", "),
			ForeignKeys: strings.Join(fks, ", "),
		})
	}

	var prompt bytes.Buffer
	err := d.tmpl.Execute(&prompt, map[string]interface{}{
		"Database": database,
		"Domains":  domainAlphabet,
		"Tables":   rows,
	})
	if err != nil {
		return nil, err
	}

	result, err := d.client.Complete(ctx, llm.CompletionRequest{
		Model:       d.model,
		Prompt:      prompt.String(),
		MaxTokens:   2048,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := parseDomainResponse(result.Content)
	if err != nil {
		return nil, err
	}

	valid := map[string]bool{}
	for _, domain := range domainAlphabet {
		valid[domain] = true
	}

	out := map[string]string{}
	for _, md := range batch {
		fqn := md.FullyQualifiedName()
		domain, ok := parsed[fqn]
		if !ok {
			// Some models answer with the bare table name.
			domain, ok = parsed[md.Table]
		}
		if !ok {
			continue
		}
		domain = strings.ToLower(strings.TrimSpace(domain))
		if !valid[domain] {
			domain = "other"
		}
		out[fqn] = domain
	}
	return out, nil
}

// parseDomainResponse extracts the JSON object from a completion, tolerating
// surrounding prose and code fences.
func parseDomainResponse(content string) (map[string]string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, llm.NewParseError("no JSON object in domain response")
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, llm.NewParseError("domain response is not a string map")
	}
	return parsed, nil
}

// ruleDomain classifies a table by its name tokens.
func ruleDomain(md *models.TableMetadata) string {
	for _, token := range naming.SplitExpanded(md.Table) {
		if domain, ok := keywordDomains[naming.Singular(token)]; ok {
			return domain
		}
	}
	return ""
}

// clusterByForeignKeys returns the domain most of the table's FK targets
// belong to, or "".
func clusterByForeignKeys(md *models.TableMetadata, assigned map[string]string) string {
	votes := map[string]int{}
	for _, fk := range md.ForeignKeys {
		target := fk.TargetSchema + "." + fk.TargetTable
		if domain, ok := assigned[target]; ok {
			votes[domain]++
		}
	}

	best, bestCount := "", 0
	for domain, count := range votes {
		if count > bestCount || (count == bestCount && domain < best) {
			best, bestCount = domain, count
		}
	}
	return best
}
