package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/browser"
	"github.com/njavet/unichat/internal/config"
	"github.com/njavet/unichat/internal/store"
)

// ServiceInstagram tags messages scraped from the Instagram web client.
const ServiceInstagram = "instagram"

// instagramTimeLayouts are the formats Instagram renders for the sparse
// time headers between message runs. Same-day headers carry no date and
// get anchored to today.
var instagramTimeLayouts = []string{
	"Jan 2, 2006, 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Monday 3:04 PM",
	"3:04 PM",
}

func parseInstagramTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range instagramTimeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			now := time.Now().UTC()
			t = time.Date(now.Year(), now.Month(), now.Day(),
				t.Hour(), t.Minute(), 0, 0, time.UTC)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// Instagram scrapes the Instagram direct-message web client. Login is a
// credential form; message timestamps only appear as sparse headers, so
// extraction carries the last seen header forward across the blobs below
// it.
type Instagram struct {
	sm  *browser.SessionManager
	st  *store.Store
	cfg *config.Provider
	log *zap.Logger

	mu   sync.Mutex
	page *rod.Page
}

// NewInstagram builds the Instagram client.
func NewInstagram(sm *browser.SessionManager, st *store.Store, cfg *config.Provider, log *zap.Logger) *Instagram {
	return &Instagram{sm: sm, st: st, cfg: cfg, log: log}
}

// Service implements Client.
func (g *Instagram) Service() string { return ServiceInstagram }

// me is the sender label Instagram renders for own messages. It doubles
// as the owner's service handle.
func (g *Instagram) me() string { return g.cfg.Get().Instagram.SelfSender }

func (g *Instagram) normalizer() *Normalizer {
	return NewNormalizer(ServiceInstagram, g.st, "", "", "", g.log)
}

func (g *Instagram) tab(ctx context.Context) (*rod.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.page != nil {
		if err := g.sm.FocusTab(g.page); err == nil {
			return g.page, nil
		}
		g.page = nil
	}
	page, err := g.sm.OpenOrFocusTab(ctx, g.cfg.Get().Instagram.URL)
	if err != nil {
		return nil, err
	}
	g.page = page
	return page, nil
}

// IsLoggedIn reports the absence of the login form.
func (g *Instagram) IsLoggedIn(ctx context.Context) (bool, error) {
	var logged bool
	err := g.sm.RunExclusive(func() error {
		page, err := g.tab(ctx)
		if err != nil {
			return err
		}
		logged = g.isLoggedIn(page)
		return nil
	})
	return logged, err
}

func (g *Instagram) isLoggedIn(page *rod.Page) bool {
	cfg := g.cfg.Get()
	_, err := page.Timeout(cfg.ShortTimeout()).Element("#" + cfg.Instagram.Selectors.LoginForm)
	return err != nil
}

// LoginChallenge reports whether credentials are needed. Instagram has no
// out-of-band payload; the UI layer prompts and calls Login.
func (g *Instagram) LoginChallenge(ctx context.Context) (Challenge, error) {
	logged, err := g.IsLoggedIn(ctx)
	if err != nil {
		return Challenge{Kind: ChallengeNone}, err
	}
	if logged {
		return Challenge{Kind: ChallengeLoggedIn}, nil
	}
	return Challenge{Kind: ChallengeCredentials}, nil
}

// Login fills the credential form and submits it. Cookie and notification
// prompts are declined when they appear.
func (g *Instagram) Login(ctx context.Context, username, password string) error {
	cfg := g.cfg.Get()
	sel := cfg.Instagram.Selectors
	return g.sm.RunExclusive(func() error {
		page, err := g.tab(ctx)
		if err != nil {
			return err
		}
		if has, el, _ := page.Has(sel.DeclineCookies); has {
			_ = el.Click(proto.InputMouseButtonLeft, 1)
		}
		if _, err := page.Timeout(cfg.Timeout()).Element(sel.LoginFields); err != nil {
			return fmt.Errorf("login form did not render: %w", err)
		}
		fields, err := page.Elements(sel.LoginFields)
		if err != nil {
			return err
		}
		if len(fields) < 2 {
			return errors.New("login form missing credential fields")
		}
		if err := fields[0].Input(username); err != nil {
			return err
		}
		if err := fields[1].Input(password); err != nil {
			return err
		}
		button, err := page.Timeout(cfg.ShortTimeout()).Element(sel.LoginButton)
		if err != nil {
			return fmt.Errorf("login button missing: %w", err)
		}
		if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		if el, err := page.Timeout(cfg.ShortTimeout()).Element(sel.DeclineNotifications); err == nil {
			_ = el.Click(proto.InputMouseButtonLeft, 1)
		}
		return nil
	})
}

// AwaitLogin polls the logged-in indicator at 1s intervals, then
// self-links the owner to the own-message sender label.
func (g *Instagram) AwaitLogin(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		logged, err := g.IsLoggedIn(ctx)
		if err != nil {
			return false, err
		}
		if logged {
			if err := g.ensureSelfLink(); err != nil {
				g.log.Warn("owner self-link failed", zap.Error(err))
			}
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (g *Instagram) ensureSelfLink() error {
	owner, err := g.st.Owner()
	if err != nil {
		return err
	}
	if owner == nil {
		return errors.New("no owner contact")
	}
	_, err = g.st.CreateLink(ServiceInstagram, owner.Name, g.me())
	return err
}

// ActiveChats lists the thread names visible in the contacts rail of the
// direct-message inbox.
func (g *Instagram) ActiveChats(ctx context.Context, limit int) ([]string, error) {
	cfg := g.cfg.Get()
	sel := cfg.Instagram.Selectors
	var names []string
	err := g.sm.RunExclusive(func() error {
		page, err := g.tab(ctx)
		if err != nil {
			return err
		}
		if err := page.Timeout(cfg.Browser.NavigationTimeout()).Navigate(cfg.Instagram.MessageURL); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if _, err := page.Timeout(cfg.Timeout()).Element(sel.Contacts); err != nil {
			g.log.Warn("failed to retrieve instagram threads", zap.Error(err))
			return nil
		}
		entries, err := page.Elements(sel.Name)
		if err != nil {
			return nil
		}
		seen := make(map[string]bool)
		for _, entry := range entries {
			text, err := entry.Text()
			if err != nil {
				continue
			}
			name, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
			if limit > 0 && len(names) >= limit {
				break
			}
		}
		return nil
	})
	return names, err
}

// selectThread opens the direct-message inbox and clicks the thread entry
// matching the name.
func (g *Instagram) selectThread(page *rod.Page, cfg config.Config, name string) error {
	sel := cfg.Instagram.Selectors
	if info, err := page.Info(); err != nil || !strings.HasPrefix(info.URL, cfg.Instagram.MessageURL) {
		if err := page.Timeout(cfg.Browser.NavigationTimeout()).Navigate(cfg.Instagram.MessageURL); err != nil {
			return errChatNotFound
		}
	}
	if _, err := page.Timeout(cfg.Timeout()).Element(sel.Contacts); err != nil {
		return errChatNotFound
	}
	entries, err := page.Elements(sel.Name)
	if err != nil {
		return errChatNotFound
	}
	for _, entry := range entries {
		text, err := entry.Text()
		if err != nil {
			continue
		}
		current, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
		if current == name {
			return entry.Click(proto.InputMouseButtonLeft, 1)
		}
	}
	return errChatNotFound
}

// rodThread adapts the live thread document to threadView.
type rodThread struct {
	window  *rod.Element
	sel     config.InstagramSelectors
	timeout time.Duration
	cutoff  time.Time
}

func (v *rodThread) scrollToOrigin() error {
	_, err := v.window.Eval(`() => this.scrollTo(0, 0)`)
	return err
}

func (v *rodThread) waitLoaded() error {
	_, err := v.window.Timeout(v.timeout).ElementX(v.sel.MessageBlobXPath)
	return err
}

func (v *rodThread) extent() (int, error) {
	res, err := v.window.Eval(`() => this.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (v *rodThread) pastCutoff() (bool, error) {
	headers, err := v.window.ElementsX(v.sel.TimeXPath)
	if err != nil || len(headers) == 0 {
		return false, err
	}
	raw, err := headers[0].Text()
	if err != nil {
		return false, nil
	}
	ts, err := parseInstagramTime(raw)
	if err != nil {
		return false, nil // oldest header unparseable, keep scrolling
	}
	return ts.Before(v.cutoff), nil
}

func (v *rodThread) blobs() ([]threadBlob, error) {
	els, err := v.window.ElementsX(v.sel.MessageBlobXPath)
	if err != nil {
		return nil, err
	}
	out := make([]threadBlob, 0, len(els))
	for _, el := range els {
		// Lazy blob HTML only materializes once the blob has been in
		// view.
		_ = el.ScrollIntoView()
		var b threadBlob
		if has, timeEl, _ := el.HasX(v.sel.TimeXPath); has {
			b.timeHeader, _ = timeEl.Text()
		}
		if has, senderEl, _ := el.HasX(v.sel.SenderXPath); has {
			b.sender, _ = senderEl.Text()
		}
		text, err := el.Text()
		if err != nil {
			continue // stale element, gone after a re-render
		}
		b.text = text
		out = append(out, b)
	}
	return out, nil
}

// History extracts the full message history of a thread, oldest first.
// The thread is scrolled to its origin until the scroll extent stabilizes
// before any blob is read.
func (g *Instagram) History(ctx context.Context, chatName string) ([]Draft, error) {
	return g.extract(ctx, chatName, nil)
}

func (g *Instagram) extract(ctx context.Context, chatName string, cutoff *time.Time) ([]Draft, error) {
	cfg := g.cfg.Get()
	sel := cfg.Instagram.Selectors
	norm := g.normalizer()
	me := g.me()

	var drafts []Draft
	err := g.sm.RunExclusive(func() error {
		page, err := g.tab(ctx)
		if err != nil {
			return err
		}
		if err := g.selectThread(page, cfg, chatName); err != nil {
			g.log.Warn("instagram thread not found", zap.String("chat", chatName))
			return nil
		}
		window, err := page.Timeout(cfg.Timeout()).Element(sel.ChatWindow)
		if err != nil {
			g.log.Warn("failed to retrieve instagram messages", zap.String("chat", chatName), zap.Error(err))
			return nil
		}
		view := &rodThread{
			window:  window.CancelTimeout(),
			sel:     sel,
			timeout: cfg.Timeout(),
		}
		bounded := cutoff != nil
		if bounded {
			view.cutoff = *cutoff
		}
		blobs, err := loadThreadBlobs(view, bounded)
		if err != nil {
			g.log.Warn("thread scroll aborted", zap.String("chat", chatName), zap.Error(err))
			return nil
		}
		for _, entry := range walkThreadBlobs(blobs, chatName, me) {
			from, err := norm.resolve(entry.sender)
			if err != nil {
				g.log.Warn("message blob skipped", zap.String("chat", chatName), zap.Error(err))
				continue
			}
			to, err := norm.resolve(entry.recipient)
			if err != nil {
				g.log.Warn("message blob skipped", zap.String("chat", chatName), zap.Error(err))
				continue
			}
			drafts = append(drafts, Draft{
				FromContact: from.Name,
				ToContact:   to.Name,
				Service:     ServiceInstagram,
				Text:        entry.text,
				Timestamp:   entry.ts,
			})
		}
		return nil
	})
	return drafts, err
}

// LatestMessages re-extracts with an early cutoff at the last stored
// message and filters what the store already has.
func (g *Instagram) LatestMessages(ctx context.Context, chatName string) ([]Draft, error) {
	meContact, err := g.st.ContactByHandle(ServiceInstagram, g.me())
	if err != nil {
		return nil, err
	}
	chatContact, err := g.st.ContactByHandle(ServiceInstagram, chatName)
	if err != nil {
		return nil, err
	}
	if meContact == nil || chatContact == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotLinked, chatName)
	}
	last, err := g.st.LastMessage(meContact.Name, chatContact.Name, ServiceInstagram)
	if err != nil {
		return nil, err
	}
	var cutoff time.Time
	var bound *time.Time
	if last != nil {
		cutoff = last.Timestamp
		bound = &cutoff
	}
	drafts, err := g.extract(ctx, chatName, bound)
	if err != nil {
		return nil, err
	}
	return g.normalizer().FilterNew(drafts, cutoff)
}

// SaveMessage persists a draft as a text message.
func (g *Instagram) SaveMessage(d Draft) (*store.Message, error) {
	return g.st.CreateMessage(d.FromContact, d.ToContact, d.Service, d.Text, "", "", d.Timestamp)
}

// SendText sends a message to the linked thread of a contact.
func (g *Instagram) SendText(ctx context.Context, to *store.Contact, text string) error {
	link, err := g.st.LinkByContact(ServiceInstagram, to.Name)
	if err != nil {
		return err
	}
	if link == nil {
		return fmt.Errorf("%w: %q", ErrNotLinked, to.Name)
	}
	cfg := g.cfg.Get()
	sel := cfg.Instagram.Selectors
	return g.sm.RunExclusive(func() error {
		page, err := g.tab(ctx)
		if err != nil {
			return err
		}
		if err := g.selectThread(page, cfg, link.Handle); err != nil {
			g.log.Warn("instagram thread not found", zap.String("chat", link.Handle))
			return nil
		}
		box, err := page.Timeout(cfg.Timeout()).Element(sel.InputBox)
		if err != nil {
			g.log.Warn("error while sending instagram message", zap.Error(err))
			return nil
		}
		if err := box.Input(text); err != nil {
			return err
		}
		return box.Type(input.Enter)
	})
}

// Link binds an Instagram thread name to a local contact.
func (g *Instagram) Link(handle string, contact *store.Contact) (*store.Link, error) {
	return g.st.CreateLink(ServiceInstagram, contact.Name, handle)
}

// Linked reports whether the contact's history has been imported.
func (g *Instagram) Linked(contact *store.Contact) (bool, error) {
	link, err := g.st.LinkByContact(ServiceInstagram, contact.Name)
	if err != nil {
		return false, err
	}
	return link != nil && link.Linked, nil
}
