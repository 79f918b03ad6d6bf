package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	ddns "github.com/Travis-Britz/porkbun-ddns"
	"github.com/Travis-Britz/porkbun-ddns/internal/config"
	"github.com/Travis-Britz/porkbun-ddns/internal/logging"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newCmdSetup returns a command that verifies API keys and writes them to the config file.
func newCmdSetup(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Verify Porkbun API keys and store them in the config file",
		Long: `Verify Porkbun API keys and store them in the config file.

Keys given with --apikey/--secretapikey or the environment are used as is,
missing ones are read from the terminal. The file is written with mode 0600.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			logger := logging.FromContext(ctx)

			path, err := opts.path()
			if err != nil {
				return err
			}
			if !force && hasKeys(opts, path) {
				return fmt.Errorf("config file %s already holds API keys, use --force to replace them", path)
			}

			sources := []config.Source{
				config.FlagSource(c.Flags()),
				config.EnvSource(opts.fs),
				config.Defaults(map[string]string{config.KeyEndpoint: ddns.DefaultEndpoint}),
			}
			endpoint, err := config.Lookup(config.KeyEndpoint, sources...)
			if err != nil {
				return err
			}
			in := bufio.NewReader(c.InOrStdin())
			apikey, err := promptKey(c, in, config.KeyAPIKey, "Enter Porkbun API key: ", sources)
			if err != nil {
				return err
			}
			secret, err := promptKey(c, in, config.KeySecretAPIKey, "Enter Porkbun secret API key: ", sources)
			if err != nil {
				return err
			}

			pb, err := ddns.NewPorkbunClient(ddns.Credentials{Endpoint: endpoint, APIKey: apikey, SecretAPIKey: secret})
			if err != nil {
				return err
			}
			pb.SetLogger(logger)
			logger.Info("verifying API keys")
			ip, err := pb.Ping(ctx)
			if err != nil {
				return fmt.Errorf("unable to verify API keys: %w", err)
			}
			logger.Info("API keys verified", "yourIp", ip)

			cfg := config.Config{Endpoint: endpoint, APIKey: apikey, SecretAPIKey: secret}
			if err := config.Save(opts.fs, path, cfg); err != nil {
				return err
			}
			logger.Info("API keys written", "path", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace API keys already stored in the config file")
	return cmd
}

func hasKeys(opts *globalOptions, path string) bool {
	src, err := config.FileSource(opts.fs, path)
	if err != nil {
		return false
	}
	_, err = config.Load(src, config.Defaults(map[string]string{config.KeyEndpoint: ddns.DefaultEndpoint}))
	return err == nil
}

// promptKey returns key from sources, or asks for it.
// Terminal input is not echoed.
func promptKey(c *cobra.Command, in *bufio.Reader, key, prompt string, sources []config.Source) (string, error) {
	if v, ok := config.LookupOptional(key, sources...); ok {
		return v, nil
	}
	fmt.Fprint(c.ErrOrStderr(), prompt)

	var v string
	if f, ok := c.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("error reading from stdin: %w", err)
		}
		v = string(b)
	} else {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("error reading from stdin: %w", err)
		}
		v = line
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return v, nil
}
