package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sh1vu7/secreteshare/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the service configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	return cmd
}

// ConfigValidateResult reports a successful validation.
type ConfigValidateResult struct {
	Source string `json:"source"`
	Valid  bool   `json:"valid"`
}

func (r ConfigValidateResult) String() string {
	return fmt.Sprintf("✓ %s is valid", r.Source)
}

// configSource names where the configuration came from.
func configSource(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return path
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			if _, err := rootOpts.loadConfig(); err != nil {
				_ = out.Error(ErrCodeConfig, err.Error(), problems(err))
				return WrapExitError(ExitFailure, "configuration invalid", err)
			}
			return out.Success(ConfigValidateResult{Source: configSource(rootOpts.ConfigPath), Valid: true})
		},
	}
}

// problems splits a joined validation error into its lines.
func problems(err error) []string {
	var lines []string
	for _, l := range strings.Split(err.Error(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ConfigDocument is the effective configuration with secrets masked.
type ConfigDocument struct {
	doc map[string]any
	raw []byte
}

func (d ConfigDocument) String() string {
	return strings.TrimRight(string(d.raw), "\n")
}

// MarshalJSON emits the same keys as the YAML file.
func (d ConfigDocument) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.doc)
}

func newConfigDocument(cfg *config.Config) (ConfigDocument, error) {
	raw, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return ConfigDocument{}, fmt.Errorf("encode config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return ConfigDocument{}, fmt.Errorf("encode config: %w", err)
	}
	return ConfigDocument{doc: doc, raw: raw}, nil
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				_ = out.Error(ErrCodeConfig, err.Error(), problems(err))
				return WrapExitError(ExitFailure, "configuration invalid", err)
			}
			doc, err := newConfigDocument(cfg)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to render config", err)
			}
			return out.Success(doc)
		},
	}
}
