// Package main implements the unichat CLI commands.
// This file contains the conversation commands: discovery, linking,
// sending and the stored-message view.
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/scraper"
)

var (
	chatsLimit    int
	messagesLimit int
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List active conversations on the selected service",
	RunE:  chats,
}

var linkCmd = &cobra.Command{
	Use:   "link [contact] [handle]",
	Short: "Link a conversation to a contact and import its history",
	Long: `Binds the service-side conversation handle to a local contact, then
imports the conversation's full message history. Messages whose sender
or recipient is not linked to any contact are skipped, never
auto-created.`,
	Args: cobra.ExactArgs(2),
	RunE: link,
}

var sendCmd = &cobra.Command{
	Use:   "send [contact] [text...]",
	Short: "Send a text message to a linked contact",
	Args:  cobra.MinimumNArgs(2),
	RunE:  send,
}

var messagesCmd = &cobra.Command{
	Use:   "messages [contact]",
	Short: "Show the stored conversation with a contact",
	Args:  cobra.ExactArgs(1),
	RunE:  messages,
}

func init() {
	chatsCmd.Flags().IntVar(&chatsLimit, "limit", 0, "max conversations to list (0 = config default)")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 50, "max messages to show (0 = all)")
}

func chats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	c, err := a.client()
	if err != nil {
		return err
	}
	if err := a.startSession(ctx, c); err != nil {
		return err
	}
	limit := chatsLimit
	if limit <= 0 {
		limit = a.cfg.Get().Fetcher.ChatLimit
	}
	names, err := c.ActiveChats(ctx, limit)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func link(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	contactName, handle := args[0], args[1]
	contact, err := a.st.Contact(contactName)
	if err != nil {
		return err
	}
	if contact == nil {
		return fmt.Errorf("no contact named %q", contactName)
	}

	c, err := a.client()
	if err != nil {
		return err
	}
	lnk, err := c.Link(handle, contact)
	if err != nil {
		return err
	}
	if lnk.Handle != handle {
		return fmt.Errorf("contact %q is already linked to %q on %s",
			contactName, lnk.Handle, c.Service())
	}

	if err := a.startSession(ctx, c); err != nil {
		return err
	}
	drafts, err := c.History(ctx, handle)
	if err != nil {
		return err
	}
	imported, skipped := 0, 0
	for _, d := range drafts {
		exists, err := a.st.MessageExists(d.FromContact, d.ToContact, d.Service, d.Timestamp, d.Text)
		if err != nil {
			return err
		}
		if exists {
			skipped++
			continue
		}
		if _, err := c.SaveMessage(d); err != nil {
			return err
		}
		imported++
	}
	if err := a.st.MarkLinked(c.Service(), contactName); err != nil {
		return err
	}
	logger.Info("history imported",
		zap.String("service", c.Service()), zap.String("contact", contactName),
		zap.Int("imported", imported), zap.Int("skipped", skipped))
	fmt.Printf("linked %q to %q on %s, imported %d messages\n",
		contactName, handle, c.Service(), imported)
	return nil
}

func send(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	contact, err := a.st.Contact(args[0])
	if err != nil {
		return err
	}
	if contact == nil {
		return fmt.Errorf("no contact named %q", args[0])
	}
	text := strings.Join(args[1:], " ")

	c, err := a.client()
	if err != nil {
		return err
	}
	if err := a.startSession(ctx, c); err != nil {
		return err
	}
	if err := c.SendText(ctx, contact, text); err != nil {
		if errors.Is(err, scraper.ErrNotLinked) {
			return fmt.Errorf("contact %q has no %s link, run link first", contact.Name, c.Service())
		}
		return err
	}
	fmt.Printf("sent to %q on %s\n", contact.Name, c.Service())
	return nil
}

func messages(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	owner, err := a.st.Owner()
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("no owner contact, run: unichat contact add --owner")
	}
	msgs, err := a.st.Messages(owner.Name, args[0], service, messagesLimit)
	if err != nil {
		return err
	}
	// Stored newest-first; print chronologically.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.FromContact, m.Text)
	}
	return nil
}
