package models

import "time"

// Folder is a node of the user's folder tree. A folder whose LockUntil lies
// in the future is locked.
type Folder struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner"`
	Name      string     `json:"name"`
	ParentID  string     `json:"parent"`
	LockUntil *time.Time `json:"lockUntil,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// LockedAt reports whether the folder is locked at instant now.
func (f *Folder) LockedAt(now time.Time) bool {
	return f.LockUntil != nil && f.LockUntil.After(now)
}
