package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/njavet/unichat/internal/store"
)

// annotationPattern matches the "[<datetime>] <sender>:" prefix WhatsApp
// attaches to every copyable message block.
var annotationPattern = regexp.MustCompile(`^\[(?P<datetime>.+)\]\s(?P<sender>.+):`)

// timestampLayouts are tried in order; the first match wins. Parsed
// wall-clock times are interpreted as UTC with no timezone correction, a
// known limitation carried over from the data source, which renders local
// times with no zone information.
var timestampLayouts = []string{
	"3:04 PM, 1/2/2006",
	"15:04, 02.01.2006",
	"15:04, 1/2/2006",
	"15:04, 02.01.06",
}

// ParseTimestamp parses a scraped locale-dependent datetime string.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// Normalizer converts raw extracted message blocks into drafts and decides
// whether a freshly-scraped message is already persisted.
type Normalizer struct {
	service string
	st      *store.Store
	log     *zap.Logger

	// Block anatomy: the class carrying the content node, the attribute
	// carrying the annotation, and the class carrying the body text.
	contentClass string
	attrName     string
	textClass    string
}

// NewNormalizer builds a normalizer for one service.
func NewNormalizer(service string, st *store.Store, contentClass, attrName, textClass string, log *zap.Logger) *Normalizer {
	return &Normalizer{
		service:      service,
		st:           st,
		log:          log,
		contentClass: contentClass,
		attrName:     attrName,
		textClass:    textClass,
	}
}

// ParseBlock turns one raw message block (outer HTML) into a draft.
// Returns ErrNoContent for blocks without message content,
// ErrBadAnnotation / ErrBadTimestamp for malformed annotations, and
// ErrUnknownContact when sender or recipient resolves to no local
// contact. All of these skip the single message; the batch continues.
//
// selfHandle is the service-side handle of the owner; chatName is the
// conversation's handle. The recipient is the owner when the sender is
// someone else, otherwise the conversation's linked contact.
func (n *Normalizer) ParseBlock(blockHTML, chatName, selfHandle string) (*Draft, error) {
	root, err := html.Parse(strings.NewReader(blockHTML))
	if err != nil {
		return nil, fmt.Errorf("parse block html: %w", err)
	}

	content := findByClass(root, n.contentClass)
	if content == nil {
		return nil, ErrNoContent
	}
	annotation := attrValue(content, n.attrName)
	match := annotationPattern.FindStringSubmatch(annotation)
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadAnnotation, annotation)
	}
	datetime := match[annotationPattern.SubexpIndex("datetime")]
	sender := match[annotationPattern.SubexpIndex("sender")]

	ts, err := ParseTimestamp(datetime)
	if err != nil {
		return nil, err
	}

	var text string
	if textNode := findByClass(root, n.textClass); textNode != nil {
		text = strings.TrimSpace(innerText(textNode))
	}

	from, err := n.resolve(sender)
	if err != nil {
		return nil, err
	}
	recipientHandle := selfHandle
	if sender == selfHandle {
		recipientHandle = chatName
	}
	to, err := n.resolve(recipientHandle)
	if err != nil {
		return nil, err
	}

	return &Draft{
		FromContact: from.Name,
		ToContact:   to.Name,
		Service:     n.service,
		Text:        text,
		Timestamp:   ts,
	}, nil
}

func (n *Normalizer) resolve(handle string) (*store.Contact, error) {
	c, err := n.st.ContactByHandle(n.service, handle)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContact, handle)
	}
	return c, nil
}

// FilterNew keeps a draft when its timestamp is strictly newer than the
// cutoff OR it is not yet stored. The OR keeps the filter robust to
// timestamp-parsing jitter: a genuinely new message is never dropped, at
// the cost of occasionally re-surfacing a near-duplicate.
func (n *Normalizer) FilterNew(drafts []Draft, cutoff time.Time) ([]Draft, error) {
	var out []Draft
	for _, d := range drafts {
		if d.Timestamp.After(cutoff) {
			out = append(out, d)
			continue
		}
		exists, err := n.st.MessageExists(d.FromContact, d.ToContact, d.Service, d.Timestamp, d.Text)
		if err != nil {
			return nil, err
		}
		if !exists {
			out = append(out, d)
		}
	}
	return out, nil
}

// findByClass returns the first node (depth first) carrying the class.
func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attrValue(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func innerText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(innerText(c))
	}
	return b.String()
}
