package main

import (
	"fmt"

	ddns "github.com/Travis-Britz/porkbun-ddns"
	"github.com/Travis-Britz/porkbun-ddns/internal/config"
	"github.com/Travis-Britz/porkbun-ddns/internal/logging"
	"github.com/spf13/cobra"
)

// newCmdPurge returns a command that deletes the A and AAAA records of a domain.
func newCmdPurge(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge DOMAIN [SUBDOMAIN...]",
		Short: "Delete the A and AAAA records of DOMAIN or its subdomains",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			domain, subdomains, err := domainArgs(args, config.EnvSource(opts.fs))
			if err != nil {
				return err
			}
			creds, err := opts.credentials(c)
			if err != nil {
				return err
			}
			client, err := ddns.New(domain,
				ddns.UsingPorkbun(creds),
				ddns.WithSubdomains(subdomains...),
				ddns.WithLogger(logging.FromContext(ctx)),
				ddns.WithRateLimit(opts.rateLimit),
			)
			if err != nil {
				return fmt.Errorf("error creating ddns client: %w", err)
			}
			return client.PurgeDDNS(ctx)
		},
	}
}
