package scraper

import "sort"

// chatListView abstracts the scrollable conversation list so the
// collection loop can be exercised without a browser.
type chatListView interface {
	scrollTo(offset int) error
	visibleNames() ([]string, error)
	height() (int, error)
}

// archivedPlaceholders are the pseudo-entries the conversation list
// renders for the archive folder, localized.
var archivedPlaceholders = map[string]bool{
	"Archived":   true,
	"Archiviert": true,
}

// collectChatNames scrolls the list in fixed steps, accumulating visible
// names into a set after each step. It runs at most ceil(height/step)
// iterations, exiting early once the raw set reaches limit. Archive
// placeholders and empty names are discarded; the result is sorted for
// determinism.
func collectChatNames(view chatListView, step, limit int) ([]string, error) {
	height, err := view.height()
	if err != nil {
		return nil, err
	}
	unique := make(map[string]bool)
	iterations := (height + step - 1) / step
	offset := 0
	for i := 0; i < iterations; i++ {
		if err := view.scrollTo(offset); err != nil {
			return nil, err
		}
		names, err := view.visibleNames()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			unique[name] = true
		}
		offset += step
		if limit > 0 && len(unique) >= limit {
			break
		}
	}

	out := make([]string, 0, len(unique))
	for name := range unique {
		if name == "" || archivedPlaceholders[name] {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// historyView abstracts the lazily-loading message container.
type historyView interface {
	scrollToOrigin() error
	waitLoaded() error
	extent() (int, error)
	// pastCutoff reports whether the oldest loaded block is already
	// strictly older than the incremental cutoff.
	pastCutoff() (bool, error)
}

// scrollHistoryToOrigin scrolls the container to its origin until the
// scroll extent stabilizes (fixed point), which means the full history is
// loaded into the document. With bounded set, it stops early as soon as
// the oldest loaded block predates the cutoff, sparing a full-history
// reload on routine polls.
func scrollHistoryToOrigin(v historyView, bounded bool) error {
	last, err := v.extent()
	if err != nil {
		return err
	}
	if bounded {
		reached, err := v.pastCutoff()
		if err != nil {
			return err
		}
		if reached {
			return nil
		}
	}
	for {
		if err := v.scrollToOrigin(); err != nil {
			return err
		}
		if err := v.waitLoaded(); err != nil {
			return err
		}
		h, err := v.extent()
		if err != nil {
			return err
		}
		if h == last {
			return nil
		}
		last = h
		if bounded {
			reached, err := v.pastCutoff()
			if err != nil {
				return err
			}
			if reached {
				return nil
			}
		}
	}
}
