package scraper

import (
	"strings"
	"time"
)

// threadBlob is one rendered blob of a direct-message thread: an optional
// time header, an optional sender label and the body text. Header and
// label render sparsely; most blobs carry neither.
type threadBlob struct {
	timeHeader string
	sender     string
	text       string
}

// threadView abstracts the lazily-loading thread document: the history
// scroll surface plus the blob list once loading has settled.
type threadView interface {
	historyView
	blobs() ([]threadBlob, error)
}

// loadThreadBlobs scrolls the thread to its origin (fixed point, early
// cutoff exit when bounded) before reading the blobs, so extraction sees
// the whole loaded history rather than the last screenful.
func loadThreadBlobs(v threadView, bounded bool) ([]threadBlob, error) {
	if err := scrollHistoryToOrigin(v, bounded); err != nil {
		return nil, err
	}
	return v.blobs()
}

// threadEntry is a message candidate produced by the blob walk, still
// expressed in service-side handles.
type threadEntry struct {
	sender    string
	recipient string
	text      string
	ts        time.Time
}

// walkThreadBlobs applies the thread-view conventions: a parseable time
// header carries forward to every blob below it, and blobs above the
// first one are dropped. The sender label carries forward too, starting
// with the conversation peer. selfLabel marks own messages; the recipient
// is the owner unless the sender is the owner, then it is the peer.
// Header-only and label-only blobs produce no entry.
func walkThreadBlobs(blobs []threadBlob, chatName, selfLabel string) []threadEntry {
	var out []threadEntry
	var current time.Time
	sender := chatName
	for _, b := range blobs {
		if b.timeHeader != "" {
			if ts, err := parseInstagramTime(b.timeHeader); err == nil {
				current = ts
			}
		}
		if b.sender != "" {
			sender = strings.TrimSpace(b.sender)
		}
		text := strings.TrimSpace(b.text)
		if text == strings.TrimSpace(b.timeHeader) || text == strings.TrimSpace(b.sender) {
			text = ""
		}
		if text == "" || current.IsZero() {
			continue
		}
		recipient := selfLabel
		if sender == selfLabel {
			recipient = chatName
		}
		out = append(out, threadEntry{sender: sender, recipient: recipient, text: text, ts: current})
	}
	return out
}
