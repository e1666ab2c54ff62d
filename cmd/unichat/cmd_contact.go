// Package main implements the unichat CLI commands.
// This file contains local contact management.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/njavet/unichat/internal/store"
)

var contactOwner bool

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage local contacts",
}

var contactAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a local contact",
	Long: `Adds a contact to the local store. Exactly one contact should be
created with --owner; service logins link their own account to it.`,
	Args: cobra.ExactArgs(1),
	RunE: contactAdd,
}

var contactRmCmd = &cobra.Command{
	Use:   "rm [name]",
	Short: "Remove a contact and everything linked to it",
	Long: `Removes a contact. All of its service links and all messages sent to
or from it are deleted with it.`,
	Args: cobra.ExactArgs(1),
	RunE: contactRm,
}

var contactLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List contacts and their service links",
	RunE:  contactLs,
}

func init() {
	contactAddCmd.Flags().BoolVar(&contactOwner, "owner", false, "mark this contact as the account owner")
	contactCmd.AddCommand(contactAddCmd)
	contactCmd.AddCommand(contactRmCmd)
	contactCmd.AddCommand(contactLsCmd)
}

func contactAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	name := args[0]
	if contactOwner {
		owner, err := a.st.Owner()
		if err != nil {
			return err
		}
		if owner != nil {
			return fmt.Errorf("owner already set to %q", owner.Name)
		}
	}
	if _, err := a.st.AddContact(name, contactOwner); err != nil {
		if errors.Is(err, store.ErrDuplicateContact) {
			return fmt.Errorf("contact %q already exists", name)
		}
		return err
	}
	fmt.Printf("added contact %q\n", name)
	return nil
}

func contactRm(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	removed, err := a.st.RemoveContact(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no contact named %q", args[0])
	}
	fmt.Printf("removed contact %q\n", args[0])
	return nil
}

func contactLs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	contacts, err := a.st.Contacts()
	if err != nil {
		return err
	}
	for _, c := range contacts {
		marker := " "
		if c.IsOwner {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, c.Name)
		for _, svc := range []string{"whatsapp", "instagram"} {
			link, err := a.st.LinkByContact(svc, c.Name)
			if err != nil {
				return err
			}
			if link == nil {
				continue
			}
			state := "pending"
			if link.Linked {
				state = "imported"
			}
			fmt.Printf("    %-10s %q (%s)\n", svc, link.Handle, state)
		}
	}
	return nil
}
