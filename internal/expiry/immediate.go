package expiry

import (
	"context"

	"pantrybot/internal/storage"
)

// OnItemSaved runs right after an item is created or edited. It reports
// whether a notice was handed to the gateway. Delivery problems are logged
// here and never reach the caller; the save itself is already committed.
//
// Callers reject past expiration dates before saving.
func (s *Service) OnItemSaved(ctx context.Context, it storage.Item, u storage.User) bool {
	if it.Expiration == nil {
		return false
	}
	today := s.Today()
	if !UrgentlyDue(today, *it.Expiration, u.LeadDays) {
		return false
	}
	if !ShouldSend(it) {
		return false
	}
	return s.dispatch(ctx, PathImmediate, today, it, u) == outcomeDispatched
}
