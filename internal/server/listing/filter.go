// Package listing assembles file lists for presentation.
package listing

import "github.com/dmitrijs2005/clouddrive/internal/server/models"

// FilterLocked drops files whose parent folder is in locked. The input slice
// is not modified.
func FilterLocked(files []*models.File, locked map[string]struct{}) []*models.File {
	out := make([]*models.File, 0, len(files))
	for _, f := range files {
		if _, ok := locked[f.ParentID]; ok && f.ParentID != "" {
			continue
		}
		out = append(out, f)
	}
	return out
}
