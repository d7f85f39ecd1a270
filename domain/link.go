package domain

import (
	"errors"
	"time"
)

// ErrAlreadyLinked reports a record that already belongs to a link
// group.
var ErrAlreadyLinked = errors.New("record is already linked")

// TaskLink ties one native record to a unified task. A given
// (ViewType, OriginalID) pair belongs to at most one link group.
type TaskLink struct {
	ID           string    `json:"id"`
	UnifiedID    string    `json:"unifiedId"`
	ViewType     ViewType  `json:"viewType"`
	OriginalID   string    `json:"originalId"`
	SyncEnabled  bool      `json:"syncEnabled"`
	LastSyncedAt time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LinkGroup is the set of native records representing the same task.
type LinkGroup struct {
	UnifiedID string     `json:"unifiedId"`
	Links     []TaskLink `json:"links"`
}

// Find returns the link for the given view and original id, if present.
func (g LinkGroup) Find(view ViewType, originalID string) (TaskLink, bool) {
	for _, l := range g.Links {
		if l.ViewType == view && l.OriginalID == originalID {
			return l, true
		}
	}
	return TaskLink{}, false
}

// Siblings returns every link except the one for the given view and id.
func (g LinkGroup) Siblings(view ViewType, originalID string) []TaskLink {
	out := make([]TaskLink, 0, len(g.Links))
	for _, l := range g.Links {
		if l.ViewType == view && l.OriginalID == originalID {
			continue
		}
		out = append(out, l)
	}
	return out
}
