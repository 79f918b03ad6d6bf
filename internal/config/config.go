// Package config resolves porkbun-ddns settings from an ordered list of sources:
// command line flags, environment variables and a config file.
// The first source defining a value wins.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Keys of the provider settings.
const (
	KeyEndpoint     = "endpoint"
	KeyAPIKey       = "apikey"
	KeySecretAPIKey = "secretapikey"
)

// EnvPrefix is prepended to the upper-cased key to form an environment variable name.
const EnvPrefix = "PORKBUN_"

// DefaultFileName is the name of the config file inside the user config directory.
const DefaultFileName = "porkbun-ddns-config.json"

// ErrMissingConfiguration is matched by every *MissingConfigurationError.
var ErrMissingConfiguration = errors.New("missing configuration")

// MissingConfigurationError reports a key that none of the probed sources defined.
type MissingConfigurationError struct {
	Key     string
	Sources []string
}

func (e *MissingConfigurationError) Error() string {
	if len(e.Sources) == 0 {
		return fmt.Sprintf("'%s' is not defined and no configuration sources were given", e.Key)
	}
	return fmt.Sprintf("'%s' is not defined via %s", e.Key, strings.Join(e.Sources, " nor "))
}

func (e *MissingConfigurationError) Is(target error) bool {
	return target == ErrMissingConfiguration
}

// Source is one layer of configuration.
type Source interface {
	// Name describes the source in error messages.
	Name() string
	// Lookup returns the value of key and whether the source defines it.
	// Empty values count as undefined.
	Lookup(key string) (string, bool)
}

// Config holds the provider settings.
type Config struct {
	Endpoint     string `json:"endpoint"`
	APIKey       string `json:"apikey"`
	SecretAPIKey string `json:"secretapikey"`
}

// Lookup returns the value of key from the first source defining it.
func Lookup(key string, sources ...Source) (string, error) {
	if v, ok := LookupOptional(key, sources...); ok {
		return v, nil
	}
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	return "", &MissingConfigurationError{Key: key, Sources: names}
}

// LookupOptional is like Lookup for settings that may stay undefined.
func LookupOptional(key string, sources ...Source) (string, bool) {
	for _, s := range sources {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Load resolves the provider settings.
func Load(sources ...Source) (Config, error) {
	var cfg Config
	var errs []error
	for _, f := range []struct {
		key string
		dst *string
	}{
		{KeyEndpoint, &cfg.Endpoint},
		{KeyAPIKey, &cfg.APIKey},
		{KeySecretAPIKey, &cfg.SecretAPIKey},
	} {
		v, err := Lookup(f.key, sources...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = v
	}
	return cfg, errors.Join(errs...)
}

// FlagSource reads flags that were set on the command line.
// Keys are flag names.
func FlagSource(flags *pflag.FlagSet) Source {
	return flagSource{flags}
}

type flagSource struct{ flags *pflag.FlagSet }

func (flagSource) Name() string { return "CLI-arguments" }

func (s flagSource) Lookup(key string) (string, bool) {
	f := s.flags.Lookup(key)
	if f == nil || !f.Changed {
		return "", false
	}
	v := f.Value.String()
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		v = strings.Join(sv.GetSlice(), ",")
	}
	return v, v != ""
}

// EnvSource reads PORKBUN_<KEY> environment variables, with dashes in keys turned into underscores.
//
// If PORKBUN_<KEY> is unset, the file named by PORKBUN_<KEY>_FILE is read from fsys instead,
// which is how container secrets are usually mounted.
// A nil fsys selects the OS file system.
func EnvSource(fsys afero.Fs) Source {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return envSource{fs: fsys}
}

type envSource struct{ fs afero.Fs }

func (envSource) Name() string { return "an environment-variable" }

// EnvName returns the environment variable consulted for key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func (s envSource) Lookup(key string) (string, bool) {
	name := EnvName(key)
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	path := os.Getenv(name + "_FILE")
	if path == "" {
		return "", false
	}
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(b))
	return v, v != ""
}

// FileSource loads a JSON or YAML config file.
// The file must define at least one of the API keys.
func FileSource(fsys afero.Fs, path string) (Source, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToLower(k)] = fmt.Sprint(v)
	}
	if _, ok := values[KeyAPIKey]; !ok {
		if _, ok := values[KeySecretAPIKey]; !ok {
			return nil, fmt.Errorf("config file %s: missing keys, at least one of %q and %q is required", path, KeyAPIKey, KeySecretAPIKey)
		}
	}
	return mapSource{name: "the config-file (" + path + ")", values: values}, nil
}

// Defaults is a source of fixed values, meant to be probed last.
func Defaults(values map[string]string) Source {
	return mapSource{name: "defaults", values: values}
}

type mapSource struct {
	name   string
	values map[string]string
}

func (s mapSource) Name() string { return s.name }

func (s mapSource) Lookup(key string) (string, bool) {
	v := s.values[key]
	return v, v != ""
}

// DefaultPath returns the config file path inside the user config directory
// ($XDG_CONFIG_HOME or ~/.config on Linux).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error locating config directory: %w", err)
	}
	return filepath.Join(dir, DefaultFileName), nil
}

// WriteDefault creates a config file template at path unless a file already exists.
// It reports whether a file was written.
func WriteDefault(fsys afero.Fs, path, endpoint string) (bool, error) {
	if _, err := fsys.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("error checking config file: %w", err)
	}
	if err := Save(fsys, path, Config{Endpoint: endpoint}); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes cfg as JSON to path, readable only by the owner.
func Save(fsys afero.Fs, path string, cfg Config) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	b, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	if err := afero.WriteFile(fsys, path, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("unable to write \"%s\": %w", path, err)
	}
	// WriteFile keeps the mode of an existing file
	if err := fsys.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("unable to set permissions of \"%s\": %w", path, err)
	}
	return nil
}

// CheckPermissions fails unless path is readable by its owner only.
func CheckPermissions(fsys afero.Fs, path string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking config file permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0o600 && perms != 0o400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}

// LoadDotEnv loads environment variables from dotenv files, ".env" if none are named.
// Missing files are ignored and variables that are already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", p, err)
		}
	}
	return nil
}
