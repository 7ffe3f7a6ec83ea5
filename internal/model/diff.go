package model

// RunDiff describes how a site changed between two crawl runs.
// URL lists keep the ledger order of the run they come from.
type RunDiff struct {
	OldID string `json:"old_id,omitempty"`
	NewID string `json:"new_id,omitempty"`

	// Added holds URLs discovered in the new run only.
	Added []string `json:"added,omitempty"`

	// Removed holds URLs discovered in the old run only.
	Removed []string `json:"removed,omitempty"`

	// StatusChanged holds pages visited in both runs whose status differs.
	StatusChanged []StatusChange `json:"status_changed,omitempty"`

	// ContentChanged holds pages visited in both runs whose content hash differs.
	ContentChanged []string `json:"content_changed,omitempty"`
}

// StatusChange is a page whose HTTP status differs between runs.
// Nil means the fetch produced no response.
type StatusChange struct {
	URL string `json:"url"`
	Old *int   `json:"old,omitempty"`
	New *int   `json:"new,omitempty"`
}

// Empty reports whether the two runs found no difference.
func (d RunDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 &&
		len(d.StatusChanged) == 0 && len(d.ContentChanged) == 0
}

// Diff compares two crawl reports of the same site.
// Status and content are only compared for pages visited in both runs.
func Diff(older, newer *CrawlReport) RunDiff {
	var d RunDiff
	if older == nil || newer == nil {
		return d
	}
	d.OldID = older.ID
	d.NewID = newer.ID

	oldPages := make(map[string]PageRecord, len(older.Pages))
	for _, p := range older.Pages {
		oldPages[p.URL] = p
	}
	newPages := make(map[string]struct{}, len(newer.Pages))

	for _, p := range newer.Pages {
		newPages[p.URL] = struct{}{}
		prev, ok := oldPages[p.URL]
		if !ok {
			d.Added = append(d.Added, p.URL)
			continue
		}
		if !prev.Visited || !p.Visited {
			continue
		}
		if !sameStatus(prev.StatusCode, p.StatusCode) {
			d.StatusChanged = append(d.StatusChanged, StatusChange{
				URL: p.URL,
				Old: prev.StatusCode,
				New: p.StatusCode,
			})
		}
		if prev.ContentHash != "" && p.ContentHash != "" && prev.ContentHash != p.ContentHash {
			d.ContentChanged = append(d.ContentChanged, p.URL)
		}
	}

	for _, p := range older.Pages {
		if _, ok := newPages[p.URL]; !ok {
			d.Removed = append(d.Removed, p.URL)
		}
	}
	return d
}

func sameStatus(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
