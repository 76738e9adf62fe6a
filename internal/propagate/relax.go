package propagate

import "github.com/alvmarrod/tag-weaver/internal/storage"

// Relax offers candidate to record at candidate.Distance+distance. The tag is
// inserted when missing and lowered when the new distance is strictly
// smaller. Returns whether the record changed.
func Relax(record *storage.SubredditRecord, candidate storage.Tag, distance int) bool {
	if record.Tags == nil {
		record.Tags = make(storage.Tags)
	}

	next := candidate.Distance + distance
	current, exists := record.Tags[candidate.Name]
	if exists && current <= next {
		return false
	}

	record.Tags[candidate.Name] = next
	return true
}

// RelaxAll offers every tag of parent to record. Returns the number of tags
// that changed.
func RelaxAll(record, parent *storage.SubredditRecord, distance int) int {
	changed := 0
	for _, tag := range parent.TagList() {
		if Relax(record, tag, distance) {
			changed++
		}
	}
	return changed
}
