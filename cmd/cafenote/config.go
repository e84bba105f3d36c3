package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cafenote/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage cafenote configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - CAFENOTE_* environment variables (also read from .env)
  - Configuration file
  - Default values

Cookies are never part of the configuration; see 'cafenote auth'.`,
	// config commands must work even when the current file does not validate
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every option at its default",
	Long: `Write the default configuration to .cafenote.yaml in the current
directory, or to the path given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file for errors",
	Long: `Load the configuration the way every other command does and report
each invalid value.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".cafenote.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	console.Success(fmt.Sprintf("Wrote %s", path))
	return nil
}

func loadUnvalidated() (*config.Config, error) {
	c := config.DefaultConfig()
	if err := c.LoadFromFile(configFile); err != nil {
		return nil, err
	}
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	c.MergeCommandLineFlags(map[string]interface{}{
		"account":      accountName,
		"database":     databasePath,
		"log-level":    logLevel,
		"metrics-addr": metricsAddr,
	})
	return c, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	c, err := loadUnvalidated()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	console.Printf("%s", out)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := loadUnvalidated()
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("configuration is invalid:\n%w", err)
	}
	console.Success("Configuration is valid")
	return nil
}
