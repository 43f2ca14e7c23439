package service

import (
	"context"
	"log/slog"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/recurrence"
)

// catchUp brings a group's recurrence chains up to date before a read.
// Chains that failed to commit are logged and retried on a later pass; the
// read proceeds with what was committed. A ConsistencyError is returned so
// the read fails closed.
func catchUp(ctx context.Context, m *recurrence.Materializer, groupID string) error {
	res, err := m.MaterializeDue(ctx, groupID)
	if err != nil {
		slog.Warn("materialization before read failed", "group_id", groupID, "error", err)
		return nil
	}
	for _, failure := range res.Failures {
		if errs.IsConsistency(failure) {
			return failure
		}
	}
	if len(res.Failures) > 0 {
		slog.Warn("materialization before read incomplete", "group_id", groupID, "failed", len(res.Failures))
	}
	return nil
}
