package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ddns "github.com/Travis-Britz/porkbun-ddns"
	"github.com/Travis-Britz/porkbun-ddns/internal/config"
	"github.com/Travis-Britz/porkbun-ddns/internal/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	flagPublicIPs = "public-ips"
	flagFritzbox  = "fritzbox"
	flagInterface = "interface"
	flagIPv4Only  = "ipv4-only"
	flagIPv6Only  = "ipv6-only"
	flagInterval  = "interval"
)

// Environment-only keys, read as PORKBUN_<KEY>.
const (
	keyDomain     = "domain"
	keySubdomains = "subdomains"
	keyIPv4       = "ipv4"
	keyIPv6       = "ipv6"
	keySleep      = "sleep"
)

type globalOptions struct {
	fs         afero.Fs
	configPath string
	envOnly    bool
	envFiles   []string
	verbose    bool
	logFormat  string
	rateLimit  float64
}

func defaultPathHint() string {
	p, err := config.DefaultPath()
	if err != nil {
		return config.DefaultFileName
	}
	return p
}

// path returns the config file in use. Without --config the default file is used.
func (o *globalOptions) path() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultPath()
}

// credentials resolves the Porkbun endpoint and keys.
//
// Unless --env-only is set, a missing default config file is created as a template
// so the user has something to fill in.
func (o *globalOptions) credentials(c *cobra.Command) (ddns.Credentials, error) {
	logger := logging.FromContext(c.Context())
	sources := []config.Source{config.FlagSource(c.Flags()), config.EnvSource(o.fs)}

	if !o.envOnly {
		path, err := o.path()
		if err != nil {
			return ddns.Credentials{}, err
		}
		if o.configPath == "" {
			created, err := config.WriteDefault(o.fs, path, ddns.DefaultEndpoint)
			if err != nil {
				return ddns.Credentials{}, err
			}
			if created {
				logger.Info("created config file template", "path", path)
			}
		}
		if err := config.CheckPermissions(o.fs, path); err != nil {
			logger.Warn("config file is readable by others", "error", err)
		}
		file, err := config.FileSource(o.fs, path)
		if err != nil {
			return ddns.Credentials{}, err
		}
		sources = append(sources, file)
	}
	sources = append(sources, config.Defaults(map[string]string{config.KeyEndpoint: ddns.DefaultEndpoint}))

	cfg, err := config.Load(sources...)
	if err != nil {
		return ddns.Credentials{}, err
	}
	return ddns.Credentials{Endpoint: cfg.Endpoint, APIKey: cfg.APIKey, SecretAPIKey: cfg.SecretAPIKey}, nil
}

// domainArgs returns the domain and subdomains named by the positional arguments,
// or by PORKBUN_DOMAIN and PORKBUN_SUBDOMAINS when there are none.
func domainArgs(args []string, env config.Source) (string, []string, error) {
	var domain string
	var subdomains []string
	if len(args) > 0 {
		domain, subdomains = args[0], args[1:]
	} else {
		v, err := config.Lookup(keyDomain, env)
		if err != nil {
			return "", nil, fmt.Errorf("a DOMAIN argument is required: %w", err)
		}
		domain = v
		if v, ok := env.Lookup(keySubdomains); ok {
			subdomains = splitList(v)
		}
	}
	if !strings.Contains(domain, ".") {
		return "", nil, fmt.Errorf("domain %q must have at least one dot", domain)
	}
	return domain, subdomains, nil
}

// resolverConfig builds the address discovery settings from flags, falling back to
// PORKBUN_PUBLIC_IPS, PORKBUN_FRITZBOX, PORKBUN_INTERFACE, PORKBUN_IPV4 and PORKBUN_IPV6.
func resolverConfig(flags *pflag.FlagSet, env config.Source) (ddns.ResolverConfig, error) {
	var rc ddns.ResolverConfig
	sources := []config.Source{config.FlagSource(flags), env}
	if v, ok := config.LookupOptional(flagPublicIPs, sources...); ok {
		rc.Static = splitList(v)
	}
	if v, ok := config.LookupOptional(flagFritzbox, sources...); ok {
		rc.Router = v
	}
	if v, ok := config.LookupOptional(flagInterface, sources...); ok {
		rc.Interfaces = splitList(v)
	}

	v4Only, _ := flags.GetBool(flagIPv4Only)
	v6Only, _ := flags.GetBool(flagIPv6Only)
	switch {
	case v4Only:
		rc.IPv4 = true
	case v6Only:
		rc.IPv6 = true
	default:
		var err error
		if rc.IPv4, err = envBool(env, keyIPv4, true); err != nil {
			return rc, err
		}
		if rc.IPv6, err = envBool(env, keyIPv6, true); err != nil {
			return rc, err
		}
	}
	if len(rc.Static) == 0 && !rc.IPv4 && !rc.IPv6 {
		return rc, errors.New("no protocol selected, enable IPv4 and/or IPv6")
	}
	return rc, nil
}

// pollInterval returns --interval, or PORKBUN_SLEEP (seconds or a duration) when the flag is not set.
// Zero means a single pass.
func pollInterval(flags *pflag.FlagSet, env config.Source) (time.Duration, error) {
	if flags.Changed(flagInterval) {
		return flags.GetDuration(flagInterval)
	}
	v, ok := env.Lookup(keySleep)
	if !ok {
		return 0, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: expected seconds or a duration", config.EnvName(keySleep), v)
	}
	return d, nil
}

func envBool(env config.Source, key string, def bool) (bool, error) {
	v, ok := env.Lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", config.EnvName(key), v, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
