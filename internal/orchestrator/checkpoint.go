package orchestrator

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-engine/internal/model"
	"github.com/sells-group/leadgen-engine/internal/store"
)

// loadOrInitCheckpoint returns the campaign's persisted checkpoint, or a
// zero-value one if none exists yet — a fresh run starts at seed index 0.
func loadOrInitCheckpoint(ctx context.Context, st store.Store, campaignID string) (model.Checkpoint, error) {
	cp, err := st.LoadCheckpoint(ctx, campaignID)
	if err != nil {
		return model.Checkpoint{}, eris.Wrap(err, "orchestrator: load checkpoint")
	}
	if cp == nil {
		return model.Checkpoint{CampaignID: campaignID}, nil
	}
	return *cp, nil
}

// saveProgress persists a checkpoint after finishing a seed URL or a
// search-results page, so a crash-restart resumes at the next seed/page
// instead of from the start.
func saveProgress(ctx context.Context, st store.Store, cp model.Checkpoint) {
	if err := st.SaveCheckpoint(ctx, cp); err != nil {
		zap.L().Warn("orchestrator: checkpoint save failed", zap.String("campaign_id", cp.CampaignID), zap.Error(err))
	}
}

// clearCheckpoint removes the checkpoint on terminal transition.
func clearCheckpoint(ctx context.Context, st store.Store, campaignID string) {
	if err := st.DeleteCheckpoint(ctx, campaignID); err != nil {
		zap.L().Warn("orchestrator: checkpoint delete failed", zap.String("campaign_id", campaignID), zap.Error(err))
	}
}
