// Package main implements the unichat CLI commands.
// This file contains the service login flow.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/njavet/unichat/internal/scraper"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log the selected service in",
	Long: `Brings the browser session up and walks through the service's login
challenge: a QR payload to scan for WhatsApp, a credential prompt for
Instagram. Sessions persist in the browser profile, so this is only
needed once per service until the service invalidates the session.`,
	RunE: login,
}

func login(cmd *cobra.Command, args []string) error {
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
	if err := a.sm.Start(ctx); err != nil {
		return err
	}
	logged, err := c.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if logged {
		fmt.Printf("%s: already logged in\n", c.Service())
		return nil
	}
	return runLoginFlow(ctx, a, c)
}

// runLoginFlow resolves the current login challenge interactively and
// waits for the logged-in state.
func runLoginFlow(ctx context.Context, a *app, c scraper.Client) error {
	ch, err := c.LoginChallenge(ctx)
	if err != nil {
		return err
	}
	switch ch.Kind {
	case scraper.ChallengeLoggedIn:
		fmt.Printf("%s: already logged in\n", c.Service())
		return nil
	case scraper.ChallengeQR:
		fmt.Printf("%s: scan this QR payload with the phone app:\n\n%s\n\n", c.Service(), ch.Payload)
	case scraper.ChallengeCredentials:
		if err := promptCredentials(ctx, c); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: login challenge unavailable, try again", c.Service())
	}

	fmt.Println("waiting for login...")
	ok, err := c.AwaitLogin(ctx, a.cfg.Get().Timeout())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: login not confirmed in time", c.Service())
	}
	fmt.Printf("%s: logged in\n", c.Service())
	return nil
}

func promptCredentials(ctx context.Context, c scraper.Client) error {
	ig, ok := c.(*scraper.Instagram)
	if !ok {
		return fmt.Errorf("%s does not take credentials", c.Service())
	}
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	return ig.Login(ctx, strings.TrimSpace(username), strings.TrimSpace(password))
}
