package main

import (
	"github.com/spf13/cobra"

	"github.com/splax/peephost/internal/templates"
)

func (c *cli) certCmd() *cobra.Command {
	cert := &cobra.Command{
		Use:   "cert",
		Short: "Manage Let's Encrypt certificates",
	}

	issue := &cobra.Command{
		Use:   "issue <domain>",
		Short: "Issue a certificate for a domain and its www host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			hosts := templates.CertificateTargets(args[0])
			if err := a.certs.Issue(cmd.Context(), hosts...); err != nil {
				return err
			}
			c.printf("certificate issued for %v\n", hosts)
			return nil
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <domain>",
		Short: "Delete the certificate named after a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.certs.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			c.printf("certificate %s removed\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show the certificates certbot manages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := a.certs.List(cmd.Context())
			if err != nil {
				return err
			}
			c.printf("%s\n", out)
			return nil
		},
	}

	cert.AddCommand(issue, revoke, list)
	return cert
}
