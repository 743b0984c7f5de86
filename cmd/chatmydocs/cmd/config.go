package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/chatmydocs/configs"
	"github.com/Aman-CERP/chatmydocs/internal/config"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/chatmydocs/config.yaml)
  3. Project config (.chatmydocs.yaml)
  4. .env file in the working directory
  5. Environment variables (CHATMYDOCS_*)`,
		Example: `  # Create user config with the defaults
  chatmydocs config init

  # Show effective configuration (merged from all sources)
  chatmydocs config show

  # Print user config file path
  chatmydocs config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		project bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user configuration file from a commented template.

The file is created at ~/.config/chatmydocs/config.yaml (or
$XDG_CONFIG_HOME/chatmydocs/config.yaml if XDG_CONFIG_HOME is set).
With --project, .chatmydocs.yaml is created in the working directory
instead, holding chunking, retrieval and ingestion settings.

With --force an existing user file is backed up and rewritten; settings it
already has are kept and new settings get their defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project {
				return runConfigInitProject(cmd)
			}
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Back up and rewrite an existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Create .chatmydocs.yaml in the working directory")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging all sources. API keys are masked.

Sources: merged (default), user, defaults.`,
		Example: `  chatmydocs config show
  chatmydocs config show --json
  chatmydocs config show --source user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := cmd.OutOrStdout()
	path := config.GetUserConfigPath()

	cfg := config.NewConfig()
	if _, err := os.Stat(path); err == nil {
		if !force {
			_, _ = fmt.Fprintln(out, "User configuration already exists.")
			_, _ = fmt.Fprintf(out, "  Location: %s\n", path)
			_, _ = fmt.Fprintln(out, "  Use --force to rewrite it with new defaults (your settings are kept).")
			return nil
		}

		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read user config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse user config: %w", err)
		}
		if err := cfg.WriteYAML(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "Configuration rewritten.")
		_, _ = fmt.Fprintf(out, "  Location: %s\n", path)
		_, _ = fmt.Fprintf(out, "  Backup:   %s\n", backup)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Created user configuration.")
	_, _ = fmt.Fprintf(out, "  Location: %s\n", path)
	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Pick your embedding and generation providers")
	_, _ = fmt.Fprintln(out, "  2. Run 'chatmydocs config show' to verify")
	return nil
}

func runConfigInitProject(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	path := filepath.Join(dir, ".chatmydocs.yaml")

	if _, err := os.Stat(path); err == nil {
		_, _ = fmt.Fprintln(out, "Project configuration already exists.")
		_, _ = fmt.Fprintf(out, "  Location: %s\n", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Created project configuration.")
	_, _ = fmt.Fprintf(out, "  Location: %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := cmd.OutOrStdout()

	var (
		cfg        *config.Config
		sourceDesc string
		err        error
	)
	switch source {
	case "merged":
		if cfg, err = loadConfig(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		sourceDesc = "merged (defaults + user + project + env)"

	case "user":
		path := config.GetUserConfigPath()
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			_, _ = fmt.Fprintln(out, "No user configuration file found.")
			_, _ = fmt.Fprintf(out, "  Expected at: %s\n", path)
			_, _ = fmt.Fprintln(out, "  Run 'chatmydocs config init' to create one.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read user config: %w", err)
		}
		cfg = &config.Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse user config: %w", err)
		}
		sourceDesc = fmt.Sprintf("user (%s)", filepath.Clean(path))

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, defaults)", source)
	}

	// API keys are json:"-" already; YAML output needs masking.
	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	}

	masked := *cfg
	maskSecret(&masked.Embeddings.APIKey)
	maskSecret(&masked.Generation.APIKey)
	maskSecret(&masked.Store.Hosted.APIKey)

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, _ = fmt.Fprintf(out, "# Configuration source: %s\n", sourceDesc)
	_, _ = fmt.Fprint(out, string(data))
	return nil
}

func maskSecret(s *string) {
	if *s != "" {
		*s = redacted
	}
}
