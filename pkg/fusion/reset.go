package fusion

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// ResetUniqueID regenerates the unique id of one fusion account outside a pass. The caller
// must hold the fusion source's pass lock.
func (r *Reconciler) ResetUniqueID(ctx context.Context, settings *models.FusionSettings, fusionAccountID string) (*models.FusionAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "fusion.Reconciler.ResetUniqueID")
	defer span.End()

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	p, err := r.load(ctx, settings)
	if err != nil {
		return nil, err
	}

	fa, ok := p.byID[fusionAccountID]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "fusion account not found")
	}

	previous := fa.UniqueID
	if err := r.builder.ResetUniqueID(p.PassContext, fa); err != nil {
		return nil, err
	}
	r.builder.Refresh(p.Settings, fa, p.Linked(fa))

	fa.UpdatedAt = p.Now
	if err := r.accounts.Save(ctx, fa); err != nil {
		return nil, err
	}
	if err := r.publisher.PublishFusionAccount(ctx, fa); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("fusion_account_id", fa.ID).Warn("Failed to publish fusion account")
	}
	if r.projector != nil {
		if err := r.projector.Project(ctx, []*models.FusionAccount{fa}); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("Failed to project fusion account")
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"fusion_account_id": fa.ID,
		"previous":          previous,
		"unique_id":         fa.UniqueID,
	}).Info("Reset unique id")

	return fa, nil
}
