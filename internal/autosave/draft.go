package autosave

import "time"

// ShouldApplyDraft decides whether a cached draft replaces freshly loaded
// server state: only when the server has nothing yet, or the draft was queued
// strictly after the server's last update
func ShouldApplyDraft(serverHasContent bool, serverUpdatedAt time.Time, d Draft) bool {
	if len(d.Content) == 0 {
		return false
	}
	if !serverHasContent {
		return true
	}
	return d.QueuedAt.After(serverUpdatedAt)
}
