// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotations

import "sort"

// Rank orders entries by confidence, highest first, keeps the first entry for each title
// and truncates the list to limit. Entries without a confidence sort as 0 and keep their
// relative order.
func Rank(entries []ReferenceEntry, limit int) []ReferenceEntry {
	if limit <= 0 || len(entries) == 0 {
		return []ReferenceEntry{}
	}

	sorted := make([]ReferenceEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})

	seen := make(map[string]bool, len(sorted))
	result := make([]ReferenceEntry, 0, min(limit, len(sorted)))
	for _, entry := range sorted {
		if entry.Title == "" || seen[entry.Title] {
			continue
		}
		seen[entry.Title] = true
		result = append(result, entry)
		if len(result) == limit {
			break
		}
	}

	return result
}
