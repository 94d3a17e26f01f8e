package connections

// Merge upserts next into existing by connection id.
//
// Any connection sharing next's id is dropped, even if its token is still valid, and
// next is appended last. The relative order of untouched connections is preserved and
// next always becomes the active connection. existing is never modified.
func Merge(existing []Connection, next Connection) ([]Connection, Connection) {
	next.ID = ID(next.Platform.Slug, next.Environment)

	merged := make([]Connection, 0, len(existing)+1)
	for _, c := range existing {
		if c.ID == next.ID {
			continue
		}
		merged = append(merged, c.Clone())
	}
	merged = append(merged, next.Clone())
	return merged, next.Clone()
}
