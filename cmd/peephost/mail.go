package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/splax/peephost/internal/domain"
)

func (c *cli) mailCmd() *cobra.Command {
	mail := &cobra.Command{
		Use:   "mail",
		Short: "Configure postfix/dovecot and manage mailboxes",
	}
	mail.AddCommand(c.mailSetupCmd(), c.mailUserCmd())
	return mail
}

func (c *cli) mailSetupCmd() *cobra.Command {
	var webmail bool
	cmd := &cobra.Command{
		Use:   "setup <name>",
		Short: "Configure the mail stack for a project's domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.projects.SetupMail(cmd.Context(), args[0], webmail); err != nil {
				return c.explain(err)
			}
			rec, err := a.projects.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c.printf("mail configured for %s\n", rec.Domain)
			if webmail && rec.WebmailPort > 0 {
				c.printf("webmail: https://%s (port %d)\n", rec.WebmailHost(), rec.WebmailPort)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&webmail, "webmail", false, "also install the webmail interface")
	return cmd
}

func (c *cli) mailUserCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage mailbox users",
	}

	var password string
	add := &cobra.Command{
		Use:   "add <name> <local-part>",
		Short: "Create a mailbox <local-part>@<domain>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readPassword(password)
			if err != nil {
				return err
			}
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			mapping, err := a.mail.AddUser(cmd.Context(), args[0], args[1], secret)
			if err != nil {
				return c.explain(err)
			}
			c.writeConnectionInfo(mapping)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "mailbox password (prompted when empty)")

	var newPassword string
	passwd := &cobra.Command{
		Use:   "passwd <name> <local-part>",
		Short: "Change a mailbox password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readPassword(newPassword)
			if err != nil {
				return err
			}
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.mail.SetPassword(cmd.Context(), args[0], args[1], secret); err != nil {
				return err
			}
			c.printf("password updated\n")
			return nil
		},
	}
	passwd.Flags().StringVar(&newPassword, "password", "", "new password (prompted when empty)")

	remove := &cobra.Command{
		Use:   "remove <name> <local-part>",
		Short: "Delete a mailbox and its system account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.mail.RemoveUser(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			c.printf("removed %s\n", args[1])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list <name>",
		Short: "List the mailboxes of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			users, err := a.mail.ListUsers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(users) == 0 {
				c.printf("no mailboxes for %s\n", args[0])
			}
			for _, u := range users {
				c.printf("%s\t%s\n", u.Email, u.SystemUser)
			}
			return nil
		},
	}

	user.AddCommand(add, passwd, remove, list)
	return user
}

func (c *cli) writeConnectionInfo(m domain.MailUserMapping) {
	host := m.Email
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = host[at+1:]
	}
	c.printf("mailbox %s created (system user %s)\n", m.Email, m.SystemUser)
	c.printf("  IMAP: %s:993 (SSL/TLS)\n", host)
	c.printf("  SMTP: %s:587 (STARTTLS)\n", host)
	c.printf("  username: %s\n", m.SystemUser)
}

func readPassword(flagValue string) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("password cannot be empty")
	}
	return string(first), nil
}
