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

// ServiceWhatsApp tags messages scraped from WhatsApp web.
const ServiceWhatsApp = "whatsapp"

// chatListScrollStep is the per-iteration scroll distance (px) when
// collecting the conversation list.
const chatListScrollStep = 1000

// errChatNotFound is internal: a conversation could not be selected this
// attempt. Callers log and return empty results, never propagate.
var errChatNotFound = errors.New("chat not found")

// WhatsApp scrapes the WhatsApp web client. Login is a QR flow; the
// logged-in state is re-entered idempotently on every start by probing for
// the chat search box before any credential flow.
type WhatsApp struct {
	sm  *browser.SessionManager
	st  *store.Store
	cfg *config.Provider
	log *zap.Logger

	mu   sync.Mutex
	page *rod.Page
	me   string
}

// NewWhatsApp builds the WhatsApp client. The session manager and store
// are owned elsewhere and shared.
func NewWhatsApp(sm *browser.SessionManager, st *store.Store, cfg *config.Provider, log *zap.Logger) *WhatsApp {
	return &WhatsApp{sm: sm, st: st, cfg: cfg, log: log}
}

// Service implements Client.
func (w *WhatsApp) Service() string { return ServiceWhatsApp }

func (w *WhatsApp) normalizer() *Normalizer {
	sel := w.cfg.Get().WhatsApp.Selectors
	return NewNormalizer(ServiceWhatsApp, w.st, sel.MessageContent, sel.MessageAttr, sel.MessageText, w.log)
}

// tab returns the WhatsApp tab, opening it on first use. Callers must
// hold the command gate.
func (w *WhatsApp) tab(ctx context.Context) (*rod.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.page != nil {
		if err := w.sm.FocusTab(w.page); err == nil {
			return w.page, nil
		}
		w.page = nil
	}
	page, err := w.sm.OpenOrFocusTab(ctx, w.cfg.Get().WhatsApp.URL)
	if err != nil {
		return nil, err
	}
	w.page = page
	return page, nil
}

// IsLoggedIn probes for the chat search box with a short timeout.
func (w *WhatsApp) IsLoggedIn(ctx context.Context) (bool, error) {
	var logged bool
	err := w.sm.RunExclusive(func() error {
		page, err := w.tab(ctx)
		if err != nil {
			return err
		}
		logged = w.isLoggedIn(page)
		return nil
	})
	return logged, err
}

func (w *WhatsApp) isLoggedIn(page *rod.Page) bool {
	cfg := w.cfg.Get()
	_, err := page.Timeout(cfg.ShortTimeout()).Element(cfg.WhatsApp.Selectors.SearchBox)
	return err == nil
}

// LoginChallenge navigates to WhatsApp web if needed and waits for either
// the QR code or evidence of already being logged in. A timeout yields a
// None challenge; the caller retries later.
func (w *WhatsApp) LoginChallenge(ctx context.Context) (Challenge, error) {
	cfg := w.cfg.Get()
	sel := cfg.WhatsApp.Selectors
	ch := Challenge{Kind: ChallengeNone}
	err := w.sm.RunExclusive(func() error {
		page, err := w.tab(ctx)
		if err != nil {
			return err
		}
		if w.isLoggedIn(page) {
			ch = Challenge{Kind: ChallengeLoggedIn}
			return nil
		}
		if info, err := page.Info(); err != nil || info.URL != cfg.WhatsApp.URL {
			if err := page.Timeout(cfg.Browser.NavigationTimeout()).Navigate(cfg.WhatsApp.URL); err != nil {
				return fmt.Errorf("navigate: %w", err)
			}
		}
		// Wait for the app shell before deciding which state we're in.
		if _, err := page.Timeout(cfg.Timeout()).Element(sel.StaticElement); err != nil {
			w.log.Warn("whatsapp shell did not render", zap.Error(err))
			return nil
		}
		if has, _, _ := page.Has(sel.QRCode); has {
			payload, err := w.awaitQRPayload(page, cfg)
			if err != nil {
				w.log.Warn("login failed, check the QR code and try again", zap.Error(err))
				return nil
			}
			ch = Challenge{Kind: ChallengeQR, Payload: payload}
			return nil
		}
		if w.isLoggedIn(page) {
			ch = Challenge{Kind: ChallengeLoggedIn}
		}
		return nil
	})
	return ch, err
}

// awaitQRPayload polls the QR element until its payload attribute is
// populated.
func (w *WhatsApp) awaitQRPayload(page *rod.Page, cfg config.Config) (string, error) {
	sel := cfg.WhatsApp.Selectors
	deadline := time.Now().Add(cfg.Timeout())
	for time.Now().Before(deadline) {
		el, err := page.Timeout(cfg.ShortTimeout()).Element(sel.QRCode)
		if err != nil {
			return "", err
		}
		if val, err := el.Attribute(sel.QRCodeAttr); err == nil && val != nil && *val != "" {
			return *val, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return "", fmt.Errorf("qr payload not populated within %s", cfg.Timeout())
}

// AwaitLogin polls the logged-in indicator at 1s intervals. On success the
// owner is self-linked to the scraped profile name.
func (w *WhatsApp) AwaitLogin(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		logged, err := w.IsLoggedIn(ctx)
		if err != nil {
			return false, err
		}
		if logged {
			if err := w.ensureSelfLink(ctx); err != nil {
				w.log.Warn("owner self-link failed", zap.Error(err))
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

// Me returns the own WhatsApp display name, preferring the stored owner
// link and falling back to scraping the profile panel.
func (w *WhatsApp) Me(ctx context.Context) (string, error) {
	w.mu.Lock()
	me := w.me
	w.mu.Unlock()
	if me != "" {
		return me, nil
	}
	if link, err := w.st.OwnerLink(ServiceWhatsApp); err != nil {
		return "", err
	} else if link != nil {
		w.setMe(link.Handle)
		return link.Handle, nil
	}

	cfg := w.cfg.Get()
	sel := cfg.WhatsApp.Selectors
	err := w.sm.RunExclusive(func() error {
		page, err := w.tab(ctx)
		if err != nil {
			return err
		}
		profile, err := page.Timeout(cfg.Timeout()).Element(sel.Profile)
		if err != nil {
			return err
		}
		if err := profile.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		time.Sleep(time.Second) // profile panel animates in
		nameEl, err := page.Timeout(cfg.Timeout()).Element(sel.Username)
		if err != nil {
			return err
		}
		name, err := nameEl.Text()
		if err != nil {
			return err
		}
		w.setMe(strings.TrimSpace(name))
		return page.Keyboard.Type(input.Escape)
	})
	if err != nil {
		w.log.Warn("could not extract whatsapp username", zap.Error(err))
		return "", err
	}
	return w.me, nil
}

func (w *WhatsApp) setMe(name string) {
	w.mu.Lock()
	w.me = name
	w.mu.Unlock()
}

// ensureSelfLink links the owner contact to the scraped profile name.
func (w *WhatsApp) ensureSelfLink(ctx context.Context) error {
	owner, err := w.st.Owner()
	if err != nil {
		return err
	}
	if owner == nil {
		return errors.New("no owner contact")
	}
	me, err := w.Me(ctx)
	if err != nil {
		return fmt.Errorf("own handle unavailable: %w", err)
	}
	if me == "" {
		return errors.New("own handle is empty")
	}
	_, err = w.st.CreateLink(ServiceWhatsApp, owner.Name, me)
	return err
}

// rodChatList adapts the live conversation list to chatListView.
type rodChatList struct {
	page    *rod.Page
	list    *rod.Element
	item    string
	timeout time.Duration
}

func (v *rodChatList) scrollTo(offset int) error {
	_, err := v.list.Eval(`(y) => this.scrollTo(0, y)`, offset)
	return err
}

func (v *rodChatList) visibleNames() ([]string, error) {
	if _, err := v.page.Timeout(v.timeout).Element(v.item); err != nil {
		return nil, err
	}
	items, err := v.page.Elements(v.item)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		text, err := it.Text()
		if err != nil {
			continue // stale element, gone after a re-render
		}
		name, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
		names = append(names, name)
	}
	return names, nil
}

func (v *rodChatList) height() (int, error) {
	res, err := v.list.Eval(`() => this.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// ActiveChats closes any open chat, then scrolls the conversation list
// collecting names until limit is reached or the list is exhausted.
func (w *WhatsApp) ActiveChats(ctx context.Context, limit int) ([]string, error) {
	cfg := w.cfg.Get()
	sel := cfg.WhatsApp.Selectors
	var names []string
	err := w.sm.RunExclusive(func() error {
		page, err := w.tab(ctx)
		if err != nil {
			return err
		}
		w.closeChat(page, sel)
		w.clearSearch(page, sel)

		list, err := page.Timeout(cfg.Timeout()).Element(sel.ChatList)
		if err != nil {
			w.log.Warn("failed to retrieve active chats", zap.Error(err))
			return nil
		}
		view := &rodChatList{
			page:    page,
			list:    list.CancelTimeout(),
			item:    sel.ChatListItem,
			timeout: cfg.Timeout(),
		}
		names, err = collectChatNames(view, chatListScrollStep, limit)
		if err != nil {
			w.log.Warn("chat list collection aborted", zap.Error(err))
			names = nil
			return nil
		}
		// Reset the view so the scroll position doesn't leak into the
		// next operation.
		return page.Timeout(cfg.Browser.NavigationTimeout()).Navigate(cfg.WhatsApp.URL)
	})
	return names, err
}

// clearSearch clicks the search cancel button when present.
func (w *WhatsApp) clearSearch(page *rod.Page, sel config.WhatsAppSelectors) {
	if has, el, _ := page.Has(sel.SearchBoxCancel); has {
		_ = el.Click(proto.InputMouseButtonLeft, 1)
	}
}

// closeChat clears the search box and escapes out of the open chat.
func (w *WhatsApp) closeChat(page *rod.Page, sel config.WhatsAppSelectors) {
	w.clearSearch(page, sel)
	if has, el, _ := page.Has(sel.ChatContainer); has {
		_ = el.Type(input.Escape)
	}
}

// selectChat types the name into the search field and clicks the first
// result whose title matches exactly. Absence within the short timeout is
// not fatal: errChatNotFound tells the caller to proceed without a
// selection.
func (w *WhatsApp) selectChat(page *rod.Page, cfg config.Config, name string) error {
	sel := cfg.WhatsApp.Selectors
	searchBox, err := page.Timeout(cfg.Timeout()).Element(sel.SearchBox)
	if err != nil {
		return errChatNotFound
	}
	if current, _ := searchBox.Text(); current != name {
		w.clearSearch(page, sel)
		if err := searchBox.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return errChatNotFound
		}
		if err := searchBox.Input(name); err != nil {
			return errChatNotFound
		}
	}
	// Brief pause for the filtered list to render.
	if _, err := page.Timeout(cfg.ShortTimeout()).Element(sel.ChatListItem); err != nil {
		return errChatNotFound
	}
	match, err := page.Timeout(cfg.ShortTimeout()).ElementX(fmt.Sprintf("//span[@title='%s']", name))
	if err != nil {
		return errChatNotFound
	}
	return match.Click(proto.InputMouseButtonLeft, 1)
}

// rodHistory adapts the live message container to historyView.
type rodHistory struct {
	page      *rod.Page
	window    *rod.Element
	container *rod.Element
	sel       config.WhatsAppSelectors
	timeout   time.Duration
	norm      *Normalizer
	chatName  string
	me        string
	cutoff    time.Time
}

func (v *rodHistory) scrollToOrigin() error {
	_, err := v.container.Eval(`() => this.scrollTo(0, 0)`)
	return err
}

func (v *rodHistory) waitLoaded() error {
	_, err := v.page.Timeout(v.timeout).Element("." + v.sel.MessageContent)
	return err
}

func (v *rodHistory) extent() (int, error) {
	res, err := v.window.Eval(`() => this.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (v *rodHistory) pastCutoff() (bool, error) {
	blocks, err := v.page.Elements(v.sel.MessageBlock)
	if err != nil || len(blocks) == 0 {
		return false, err
	}
	blockHTML, err := blocks[0].HTML()
	if err != nil {
		return false, nil
	}
	draft, err := v.norm.ParseBlock(blockHTML, v.chatName, v.me)
	if err != nil {
		return false, nil // oldest block unparseable, keep scrolling
	}
	return draft.Timestamp.Before(v.cutoff), nil
}

// History extracts the full message history of a conversation, oldest
// first. Transient misses resolve to an empty result and a warning.
func (w *WhatsApp) History(ctx context.Context, chatName string) ([]Draft, error) {
	return w.extract(ctx, chatName, nil)
}

func (w *WhatsApp) extract(ctx context.Context, chatName string, cutoff *time.Time) ([]Draft, error) {
	cfg := w.cfg.Get()
	sel := cfg.WhatsApp.Selectors
	me, err := w.Me(ctx)
	if err != nil {
		return nil, err
	}
	norm := w.normalizer()

	var drafts []Draft
	err = w.sm.RunExclusive(func() error {
		page, err := w.tab(ctx)
		if err != nil {
			return err
		}
		if err := w.selectChat(page, cfg, chatName); err != nil {
			w.log.Warn("whatsapp chat not found", zap.String("chat", chatName))
			return nil
		}
		if _, err := page.Timeout(cfg.Timeout()).Element(sel.MessageBlock); err != nil {
			w.log.Warn("failed to retrieve whatsapp messages", zap.String("chat", chatName), zap.Error(err))
			return nil
		}
		window, err := page.Timeout(cfg.Timeout()).Element(sel.ChatWindow)
		if err != nil {
			w.log.Warn("chat window missing", zap.Error(err))
			return nil
		}
		container, err := page.Timeout(cfg.Timeout()).Element(sel.ChatContainer)
		if err != nil {
			w.log.Warn("chat container missing", zap.Error(err))
			return nil
		}
		view := &rodHistory{
			page:      page,
			window:    window.CancelTimeout(),
			container: container.CancelTimeout(),
			sel:       sel,
			timeout:   cfg.Timeout(),
			norm:      norm,
			chatName:  chatName,
			me:        me,
		}
		bounded := cutoff != nil
		if bounded {
			view.cutoff = *cutoff
		}
		if err := scrollHistoryToOrigin(view, bounded); err != nil {
			w.log.Warn("history scroll aborted", zap.String("chat", chatName), zap.Error(err))
			return nil
		}

		blocks, err := page.Elements(sel.MessageBlock)
		if err != nil {
			return nil
		}
		for _, block := range blocks {
			blockHTML, err := block.HTML()
			if err != nil {
				continue
			}
			draft, err := norm.ParseBlock(blockHTML, chatName, me)
			if err != nil {
				if !errors.Is(err, ErrNoContent) {
					w.log.Warn("message block skipped", zap.String("chat", chatName), zap.Error(err))
				}
				continue
			}
			drafts = append(drafts, *draft)
		}
		return nil
	})
	return drafts, err
}

// LatestMessages compares the newest visible block against the last
// stored message; when they differ it re-extracts with an early cutoff
// and filters what the store already has.
func (w *WhatsApp) LatestMessages(ctx context.Context, chatName string) ([]Draft, error) {
	cfg := w.cfg.Get()
	sel := cfg.WhatsApp.Selectors
	me, err := w.Me(ctx)
	if err != nil {
		return nil, err
	}
	meContact, err := w.st.ContactByHandle(ServiceWhatsApp, me)
	if err != nil {
		return nil, err
	}
	chatContact, err := w.st.ContactByHandle(ServiceWhatsApp, chatName)
	if err != nil {
		return nil, err
	}
	if meContact == nil || chatContact == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotLinked, chatName)
	}
	last, err := w.st.LastMessage(meContact.Name, chatContact.Name, ServiceWhatsApp)
	if err != nil {
		return nil, err
	}
	if last == nil {
		// Nothing imported yet; fall back to the full history.
		return w.History(ctx, chatName)
	}

	norm := w.normalizer()
	upToDate := false
	err = w.sm.RunExclusive(func() error {
		page, err := w.tab(ctx)
		if err != nil {
			return err
		}
		if err := w.selectChat(page, cfg, chatName); err != nil {
			w.log.Warn("whatsapp chat not found", zap.String("chat", chatName))
			upToDate = true
			return nil
		}
		if _, err := page.Timeout(cfg.Timeout()).Element(sel.MessageBlock); err != nil {
			upToDate = true
			return nil
		}
		blocks, err := page.Elements(sel.MessageBlock)
		if err != nil || len(blocks) == 0 {
			upToDate = true
			return nil
		}
		newestHTML, err := blocks[len(blocks)-1].HTML()
		if err != nil {
			return nil
		}
		newest, err := norm.ParseBlock(newestHTML, chatName, me)
		if err != nil {
			return nil
		}
		upToDate = newest.FromContact == last.FromContact &&
			newest.ToContact == last.ToContact &&
			newest.Timestamp.Equal(last.Timestamp) &&
			newest.Text == last.Text
		return nil
	})
	if err != nil || upToDate {
		return nil, err
	}

	cutoff := last.Timestamp
	drafts, err := w.extract(ctx, chatName, &cutoff)
	if err != nil {
		return nil, err
	}
	return norm.FilterNew(drafts, cutoff)
}

// SaveMessage persists a draft as a text message.
func (w *WhatsApp) SaveMessage(d Draft) (*store.Message, error) {
	return w.st.CreateMessage(d.FromContact, d.ToContact, d.Service, d.Text, "", "", d.Timestamp)
}

// SendText sends a message to the linked chat of a contact. Delivery is
// not confirmed; a missing input box is logged and swallowed.
func (w *WhatsApp) SendText(ctx context.Context, to *store.Contact, text string) error {
	link, err := w.st.LinkByContact(ServiceWhatsApp, to.Name)
	if err != nil {
		return err
	}
	if link == nil {
		return fmt.Errorf("%w: %q", ErrNotLinked, to.Name)
	}
	cfg := w.cfg.Get()
	sel := cfg.WhatsApp.Selectors
	return w.sm.RunExclusive(func() error {
		page, err := w.tab(ctx)
		if err != nil {
			return err
		}
		if err := w.selectChat(page, cfg, link.Handle); err != nil {
			w.log.Warn("whatsapp chat not found", zap.String("chat", link.Handle))
			return nil
		}
		box, err := page.Timeout(cfg.Timeout()).Element(sel.MessageBox)
		if err != nil {
			w.log.Warn("error while sending whatsapp message", zap.Error(err))
			return nil
		}
		if err := box.Input(text); err != nil {
			return err
		}
		return box.Type(input.Enter)
	})
}

// Link binds a WhatsApp chat name to a local contact.
func (w *WhatsApp) Link(handle string, contact *store.Contact) (*store.Link, error) {
	return w.st.CreateLink(ServiceWhatsApp, contact.Name, handle)
}

// Linked reports whether the contact's history has been imported.
func (w *WhatsApp) Linked(contact *store.Contact) (bool, error) {
	link, err := w.st.LinkByContact(ServiceWhatsApp, contact.Name)
	if err != nil {
		return false, err
	}
	return link != nil && link.Linked, nil
}
