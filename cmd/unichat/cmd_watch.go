// Package main implements the unichat CLI commands.
// This file contains the live-watch command driving the background
// poller.
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/njavet/unichat/internal/fetcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [contact]",
	Short: "Poll a conversation and print new messages as they arrive",
	Long: `Starts the background poller on the contact's linked conversation.
New messages are persisted and printed until interrupted. The poller
survives per-iteration scrape failures; only losing the browser session
ends the watch.`,
	Args: cobra.ExactArgs(1),
	RunE: watch,
}

func watch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	contact, err := a.st.Contact(args[0])
	if err != nil {
		return err
	}
	if contact == nil {
		return fmt.Errorf("no contact named %q", args[0])
	}

	c, err := a.client()
	if err != nil {
		return err
	}
	if err := a.startSession(ctx, c); err != nil {
		return err
	}

	poller := fetcher.New(c, a.st, a.cfg, logger)
	if err := poller.ChangeTarget(contact); err != nil {
		return err
	}

	logger.Info("watching", zap.String("service", c.Service()), zap.String("contact", contact.Name))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer poller.Stop()
		err := poller.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for batch := range poller.Updates() {
			for _, m := range batch.Messages {
				fmt.Printf("[%s] %s: %s\n",
					m.Timestamp.Format("2006-01-02 15:04"), m.FromContact, m.Text)
			}
		}
		return nil
	})
	return g.Wait()
}
