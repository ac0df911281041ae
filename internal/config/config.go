// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"

	"github.com/invowk/pystep/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "pystep"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. PYSTEP_SHELL.
	EnvPrefix = "PYSTEP"

	// keyDelimiter replaces viper's "." so installation and node names may
	// contain dots.
	keyDelimiter = "::"

	// maxFileSize bounds the config file read into memory.
	maxFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// Dir returns the pystep configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
func Dir() (string, error) {
	var base string

	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(base, AppName), nil
}

// Load reads the configuration following the lookup order and returns it
// with the path of the file used ("" when only defaults apply).
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	path, err := resolvePath(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", loadError(path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", loadError(path, fmt.Errorf("failed to parse config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("ssh nodes need an address and a known_hosts file (or insecure_ignore_host_key: true)").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	defaults := DefaultConfig()
	v.SetDefault("shell", defaults.Shell)
	v.SetDefault("log_level", string(defaults.LogLevel))
	v.SetDefault("script_extension", defaults.ScriptExtension)
	v.SetDefault("virtualenvs", defaults.Virtualenvs)
	v.SetDefault("nodes", map[string]any{})
	v.SetDefault("agent"+keyDelimiter+"listen", defaults.Agent.Listen)
	v.SetDefault("agent"+keyDelimiter+"token", defaults.Agent.Token)
	v.SetDefault("agent"+keyDelimiter+"root", defaults.Agent.Root)
	v.SetDefault("agent"+keyDelimiter+"shell", defaults.Agent.Shell)
	v.SetDefault("agent"+keyDelimiter+"host_key", defaults.Agent.HostKey)

	// Only keys with a default are bound; map entries cannot be overridden.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	return v
}

// resolvePath applies the lookup order: explicit file (which must exist),
// then the configuration directory, then the working directory.
func resolvePath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'pystep config show' to see the default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		var err error
		if cfgDir, err = Dir(); err != nil {
			return "", err
		}
	}

	fileName := ConfigFileName + "." + ConfigFileExt
	if p := filepath.Join(cfgDir, fileName); fileExists(p) {
		return p, nil
	}
	if fileExists(fileName) {
		return fileName, nil
	}
	return "", nil
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper. Concrete(false) is used because every
// field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// formatCUEError renders every CUE error as "<file>: <json-path>: <message>".
func formatCUEError(err error, filePath string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		pathStr := formatPath(cueerrors.Path(e))
		msg := e.Error()
		if pathStr != "" && strings.HasPrefix(msg, pathStr) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, pathStr), ":"))
		}
		if pathStr != "" {
			msg = pathStr + ": " + msg
		}
		lines = append(lines, msg)
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// formatPath turns ["nodes", "builder", "kind"] into "nodes.builder.kind" and
// numeric elements into [i] indices.
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefault writes the default configuration into dir unless a file is
// already there. It returns the file path and whether it was created.
func CreateDefault(dir string) (string, bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, false, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, true, nil
}

// GenerateCUE renders cfg as a config file accepted by Load. Secrets are
// written as-is; callers that display the result should use Redacted first.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// pystep configuration file\n\n")
	fmt.Fprintf(&sb, "shell: %q\n", cfg.Shell)
	fmt.Fprintf(&sb, "log_level: %q\n", string(cfg.LogLevel))
	fmt.Fprintf(&sb, "script_extension: %q\n", cfg.ScriptExtension)

	if len(cfg.Virtualenvs) > 0 {
		sb.WriteString("\nvirtualenvs: {\n")
		for _, name := range sortedKeys(cfg.Virtualenvs) {
			fmt.Fprintf(&sb, "\t%q: %q\n", name, cfg.Virtualenvs[name])
		}
		sb.WriteString("}\n")
	}

	if len(cfg.Nodes) > 0 {
		sb.WriteString("\nnodes: {\n")
		for _, name := range cfg.NodeNames() {
			writeNodeCUE(&sb, name, cfg.Nodes[name])
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nagent: {\n")
	writeField(&sb, "\t", "listen", cfg.Agent.Listen)
	writeField(&sb, "\t", "token", cfg.Agent.Token)
	writeField(&sb, "\t", "root", cfg.Agent.Root)
	writeField(&sb, "\t", "shell", cfg.Agent.Shell)
	writeField(&sb, "\t", "host_key", cfg.Agent.HostKey)
	sb.WriteString("}\n")

	return sb.String()
}

func writeNodeCUE(sb *strings.Builder, name string, n NodeConfig) {
	const indent = "\t\t"
	fmt.Fprintf(sb, "\t%q: {\n", name)
	fmt.Fprintf(sb, "%skind: %q\n", indent, string(n.Kind))
	writeField(sb, indent, "address", n.Address)
	writeField(sb, indent, "user", n.User)
	writeField(sb, indent, "token", n.Token)
	writeField(sb, indent, "known_hosts", n.KnownHosts)
	if n.InsecureIgnoreHostKey {
		fmt.Fprintf(sb, "%sinsecure_ignore_host_key: true\n", indent)
	}
	writeField(sb, indent, "root", n.Root)
	writeField(sb, indent, "shell", n.Shell)
	if len(n.ToolHomes) > 0 {
		fmt.Fprintf(sb, "%stool_homes: {\n", indent)
		for _, tool := range sortedKeys(n.ToolHomes) {
			fmt.Fprintf(sb, "%s\t%q: %q\n", indent, tool, n.ToolHomes[tool])
		}
		fmt.Fprintf(sb, "%s}\n", indent)
	}
	sb.WriteString("\t}\n")
}

func writeField(sb *strings.Builder, indent, key, value string) {
	if value != "" {
		fmt.Fprintf(sb, "%s%s: %q\n", indent, key, value)
	}
}
