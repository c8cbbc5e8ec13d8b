package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// upsertFusionAccounts merges each fusion account node and replaces its LINKS edges
// with the current account list
const upsertFusionAccounts = `
UNWIND $batch AS row
MERGE (f:FusionAccount {id: row.id})
SET f = row.props
WITH f, row
OPTIONAL MATCH (f)-[stale:LINKS]->(old:SourceAccount)
WHERE NOT old.id IN row.account_ids
DELETE stale
WITH DISTINCT f, row
UNWIND row.account_ids AS accountID
MERGE (a:SourceAccount {id: accountID})
MERGE (f)-[:LINKS]->(a)
`

const linkedAccounts = `
MATCH (f:FusionAccount {id: $id})-[:LINKS]->(a:SourceAccount)
RETURN a.id AS id
ORDER BY id
`

type writer interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
	ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
}

// Projector mirrors changed fusion accounts as (:FusionAccount)-[:LINKS]->(:SourceAccount)
type Projector struct {
	client writer
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// Project writes the accounts in a single transaction
func (p *Projector) Project(ctx context.Context, accounts []*models.FusionAccount) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Project")
	defer span.End()

	if len(accounts) == 0 {
		return nil
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(accounts),
	})

	batch := projectionBatch(accounts)
	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, upsertFusionAccounts, map[string]any{"batch": batch})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		log.WithError(err).Error("Failed to project fusion accounts")
		return fmt.Errorf("failed to project fusion accounts: %w", err)
	}

	log.Debug("Projected fusion accounts")
	return nil
}

// LinkedAccounts returns the source account IDs linked to a fusion account in the graph
func (p *Projector) LinkedAccounts(ctx context.Context, fusionAccountID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.LinkedAccounts")
	defer span.End()

	result, err := p.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, linkedAccounts, map[string]any{"id": fusionAccountID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		ids := make([]string, 0, len(records))
		for _, record := range records {
			if id, ok := record.Get("id"); ok {
				if s, ok := id.(string); ok {
					ids = append(ids, s)
				}
			}
		}
		return ids, nil
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to read linked accounts")
		return nil, fmt.Errorf("failed to read linked accounts: %w", err)
	}

	return result.([]string), nil
}

// projectionBatch flattens fusion accounts into Bolt-friendly rows. Node properties
// only hold scalars and string lists.
func projectionBatch(accounts []*models.FusionAccount) []map[string]any {
	batch := make([]map[string]any, 0, len(accounts))
	for _, fa := range accounts {
		accountIDs := fa.AccountIDs
		if accountIDs == nil {
			accountIDs = []string{}
		}
		sources := fa.Sources
		if sources == nil {
			sources = []string{}
		}

		batch = append(batch, map[string]any{
			"id":          fa.ID,
			"account_ids": accountIDs,
			"props": map[string]any{
				"id":               fa.ID,
				"fusion_source_id": fa.FusionSourceID,
				"unique_id":        fa.UniqueID,
				"name":             fa.Name,
				"identity_id":      fa.IdentityID,
				"provenance":       string(fa.Provenance),
				"orphan":           fa.Orphan,
				"reviewer":         fa.Reviewer,
				"disabled":         fa.Disabled,
				"sources":          sources,
				"statuses":         fa.Statuses(),
				"updated_at":       fa.UpdatedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	return batch
}
