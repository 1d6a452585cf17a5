// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/cache"
	"github.com/classtools/classroom-sync/internal/config"
	"github.com/classtools/classroom-sync/internal/gateway"
	"github.com/classtools/classroom-sync/internal/usecase"
)

var rootCmd = &cobra.Command{
	Use:   "classroom-sync",
	Short: "CLI tools for administering a classroom of GitHub student repositories.",
	Long: `classroom-sync keeps an incremental local cache of the student repositories
in a GitHub organization and provides the classroom chores built on it:
listing and cloning assignment repos, flipping them private, dividing them
among graders, and reporting push-event times.

Repeated runs only pay API calls for repositories that actually changed.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default ~/.classroom-sync/config.toml)")
	rootCmd.PersistentFlags().String("token", "", "GitHub API token (overrides GITHUB_TOKEN and the config file)")
	rootCmd.PersistentFlags().StringP("org", "o", "", "GitHub organization to scan")
	rootCmd.PersistentFlags().StringP("prefix", "p", "", "Prefix on repository names to match (default: match all)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Directory holding cache files (default: current directory)")
}

// env bundles everything a command needs once the shared flags are resolved.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	org    string
	prefix string
	token  string
	store  *cache.Store
}

// newEnv resolves the config file and the persistent flags. Flag values win
// over file values.
func newEnv(cmd *cobra.Command) (*env, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := log.New(io.Discard, "", log.LstdFlags)
	if verbose {
		logger.SetOutput(os.Stderr)
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}

	if e.org, _ = cmd.Flags().GetString("org"); e.org == "" {
		e.org = cfg.Org
	}
	if e.prefix, _ = cmd.Flags().GetString("prefix"); e.prefix == "" {
		e.prefix = cfg.Prefix
	}
	flagToken, _ := cmd.Flags().GetString("token")
	e.token = cfg.ResolveToken(flagToken)

	dir, _ := cmd.Flags().GetString("cache-dir")
	if dir == "" {
		dir = cfg.CacheDir
	}
	e.store = cache.NewStore(dir)
	return e, nil
}

// requireOrg fails with a usage-level error when no organization is known.
func (e *env) requireOrg() error {
	if e.org == "" {
		return fmt.Errorf("no organization given: use --org or set it in the config file")
	}
	return nil
}

// requireToken fails when no API token could be resolved.
func (e *env) requireToken() error {
	if e.token == "" {
		return fmt.Errorf("no GitHub token given: use --token, set GITHUB_TOKEN, or add it to the config file")
	}
	return nil
}

// gateway builds the API gateway for commands that talk to GitHub.
func (e *env) gateway() (*gateway.GitHubGateway, error) {
	if err := e.requireToken(); err != nil {
		return nil, err
	}
	gw, err := gateway.NewGitHubGateway(e.token, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub gateway: %w", err)
	}
	return gw, nil
}

// syncer builds the gateway and syncer for commands that refresh the cache.
func (e *env) syncer() (*usecase.Syncer, *gateway.GitHubGateway, error) {
	if err := e.requireOrg(); err != nil {
		return nil, nil, err
	}
	gw, err := e.gateway()
	if err != nil {
		return nil, nil, err
	}
	return usecase.NewSyncer(gw, e.store, e.logger), gw, nil
}
