package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/runmirror/pkg/config"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	app *app
}

// Execute runs the config command with given arguments.
func (c *configCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "show":
		return c.runShow(subargs)
	case "path":
		return c.runPath()
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown config subcommand: %s", subcommand)
	}
}

// runShow displays the effective configuration.
func (c *configCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	format := fs.String("format", "yaml", "output format (yaml, json)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := c.app.loadConfig()
	if err != nil {
		return err
	}

	switch *format {
	case "json":
		return c.showJSON(cfg)
	case "yaml":
		return c.showYAML(cfg)
	default:
		return fmt.Errorf("unknown format %q: must be yaml or json", *format)
	}
}

// showYAML displays configuration in YAML format.
func (c *configCommand) showYAML(cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Fprintln(c.app.out, "# Current Configuration")
	fmt.Fprintln(c.app.out, "# Source:", c.source())
	fmt.Fprintln(c.app.out)
	_, err = fmt.Fprint(c.app.out, string(data))
	return err
}

// showJSON displays configuration in JSON format.
func (c *configCommand) showJSON(cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = fmt.Fprintln(c.app.out, string(data))
	return err
}

// runPath shows the configuration file search paths.
func (c *configCommand) runPath() error {
	paths := []string{
		"./runmirror.yaml",
		config.DefaultPath(),
	}
	if explicit := c.explicitPath(); explicit != "" {
		paths = []string{explicit}
	}

	fmt.Fprintln(c.app.out, "Configuration file search paths (in order of precedence):")
	fmt.Fprintln(c.app.out)

	for i, p := range paths {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Fprintf(c.app.out, "  %d. %s [%s]\n", i+1, p, exists)
	}

	fmt.Fprintln(c.app.out)
	fmt.Fprintln(c.app.out, "Active configuration:", c.source())
	return nil
}

// explicitPath returns the config file named by flag or environment.
func (c *configCommand) explicitPath() string {
	if c.app.configPath != "" {
		return c.app.configPath
	}
	return os.Getenv(config.EnvConfig)
}

// source returns the path of the active configuration file.
func (c *configCommand) source() string {
	if p := config.NewLoader(c.app.configPath).Path(); p != "" {
		return p
	}
	return "defaults (no config file found)"
}

// showHelp displays help for config command.
func (c *configCommand) showHelp() error {
	help := `Config - Configuration management

Usage:
  runmirror config <subcommand> [flags]

Subcommands:
  show      Display the effective configuration
  path      Show configuration file paths

Show Flags:
  -format   Output format (yaml, json) (default: yaml)

Examples:
  # Show current configuration
  runmirror config show

  # Show configuration in JSON format
  runmirror config show -format json

  # Show configuration file paths
  runmirror config path
`
	_, err := fmt.Fprint(c.app.out, help)
	return err
}
