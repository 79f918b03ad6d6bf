package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ddns "github.com/Travis-Britz/porkbun-ddns"
	"github.com/Travis-Britz/porkbun-ddns/internal/config"
	"github.com/Travis-Britz/porkbun-ddns/internal/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newRootCmd(fsys afero.Fs) *cobra.Command {
	opts := &globalOptions{fs: fsys}
	cmd := &cobra.Command{
		Use:   "porkbun-ddns DOMAIN [SUBDOMAIN...]",
		Short: "Point Porkbun DNS records at this host's public IP addresses",
		Long: `Point Porkbun DNS records at this host's public IP addresses.

The A and AAAA records of DOMAIN, or of each SUBDOMAIN of it, are created or
replaced so they hold the current public addresses. Use "@" for the bare domain.

Settings are taken from flags, then PORKBUN_* environment variables, then the
config file. PORKBUN_DOMAIN and PORKBUN_SUBDOMAINS stand in for the arguments.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return runUpdate(c, opts, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default: "+defaultPathHint()+")")
	pf.StringP(config.KeyEndpoint, "e", "", "The Porkbun API endpoint")
	pf.StringP(config.KeyAPIKey, "k", "", "The Porkbun API key")
	pf.StringP(config.KeySecretAPIKey, "s", "", "The secret API key")
	pf.BoolVar(&opts.envOnly, "env-only", false, "Don't use any config file, get all settings from flags and the environment")
	pf.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default: .env)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Show debug output")
	pf.StringVar(&opts.logFormat, "log-format", "human", "Log format (human|text|json) (env PORKBUN_LOG_FORMAT)")
	pf.Float64Var(&opts.rateLimit, "rate-limit", 0, "Maximum Porkbun API requests per second (0 = unlimited)")

	f := cmd.Flags()
	f.StringSliceP(flagPublicIPs, "i", nil, "Public IPs (v4 and or v6) to set instead of discovering them")
	f.StringP(flagFritzbox, "f", "", "IP or domain of your FRITZ!Box")
	f.StringSlice(flagInterface, nil, "Use the public addresses of these local interfaces")
	f.BoolP(flagIPv4Only, "4", false, "Only set/update IPv4 A records")
	f.BoolP(flagIPv6Only, "6", false, "Only set/update IPv6 AAAA records")
	f.Duration(flagInterval, 0, "Keep updating, pausing this long between passes, at least 1m (0 = update once) (env PORKBUN_SLEEP in seconds)")
	cmd.MarkFlagsMutuallyExclusive(flagIPv4Only, flagIPv6Only)
	cmd.MarkFlagsMutuallyExclusive(flagPublicIPs, flagFritzbox, flagInterface)

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		if err := config.LoadDotEnv(opts.envFiles...); err != nil {
			return err
		}
		format := opts.logFormat
		if env := os.Getenv("PORKBUN_LOG_FORMAT"); env != "" && !c.Flags().Changed("log-format") {
			format = env
		}
		l, err := logging.NewWithWriter(format, logging.Level(opts.verbose), c.ErrOrStderr())
		if err != nil {
			return err
		}
		c.SetContext(logging.WithLogger(c.Context(), l))
		return nil
	}

	cmd.AddCommand(newCmdSetup(opts))
	cmd.AddCommand(newCmdPurge(opts))
	cmd.AddCommand(newCmdVersion())
	return cmd
}

func runUpdate(c *cobra.Command, opts *globalOptions, args []string) error {
	ctx := c.Context()
	logger := logging.FromContext(ctx)
	env := config.EnvSource(opts.fs)

	domain, subdomains, err := domainArgs(args, env)
	if err != nil {
		return err
	}
	rc, err := resolverConfig(c.Flags(), env)
	if err != nil {
		return err
	}
	interval, err := pollInterval(c.Flags(), env)
	if err != nil {
		return err
	}
	creds, err := opts.credentials(c)
	if err != nil {
		return err
	}

	client, err := ddns.New(domain,
		ddns.UsingPorkbun(creds),
		ddns.UsingResolverConfig(rc),
		ddns.WithSubdomains(subdomains...),
		ddns.WithLogger(logger),
		ddns.WithRateLimit(opts.rateLimit),
	)
	if err != nil {
		return fmt.Errorf("error creating ddns client: %w", err)
	}
	if interval == 0 {
		return client.RunDDNS(ctx)
	}
	logger.Info("starting update loop", "domain", domain, "interval", interval.String())
	return ddns.RunDaemon(ctx, client, interval, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCmd(afero.NewOsFs())
	executed, err := root.ExecuteContextC(ctx)
	stop()
	if err != nil {
		lctx := root.Context()
		if executed != nil {
			lctx = executed.Context()
		}
		logging.FromContext(lctx).Error("failed", "error", err)
		os.Exit(1)
	}
}
