package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/seasr/flowkit/internal/cli/config"
	"github.com/seasr/flowkit/internal/cli/output"
	"github.com/seasr/flowkit/internal/components"
	"github.com/seasr/flowkit/internal/components/geo"
	"github.com/seasr/flowkit/internal/components/tuples"
	"github.com/seasr/flowkit/internal/components/twitter"
	"github.com/seasr/flowkit/internal/state"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Registry *component.Registry
}

// NewCommandContext creates a CommandContext with the component registry
// configured from cfg.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := getConfig(cmd)
	reg, err := components.NewRegistry(componentOptions(cfg))
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
		Registry: reg,
	}, nil
}

// OpenStore opens the state database, creating its directory and schema
// when needed. The caller closes the store.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	path := c.Cfg.StatePath
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return store, nil
}

// getConfig returns the configuration loaded by the root command.
func getConfig(cmd *cobra.Command) *config.Config {
	return config.FromContext(cmd.Context())
}

func componentOptions(cfg *config.Config) components.Options {
	return components.Options{
		Twitter: twitter.Options{
			SearchURL: cfg.Twitter.SearchURL,
			StreamURL: cfg.Twitter.StreamURL,
			RateLimit: cfg.Twitter.RateLimit,
		},
		Geo: geo.Options{
			BaseURL:   cfg.Geo.BaseURL,
			AppID:     cfg.Geo.AppID,
			RateLimit: cfg.Geo.RateLimit,
		},
		Tuples: tuples.Options{Database: cfg.Database},
	}
}

// resolveFlowPath finds a flow given as a path or as a name inside the
// flows directory, with or without its .yaml extension.
func resolveFlowPath(cfg *config.Config, arg string) (string, error) {
	candidates := []string{arg}
	if !filepath.IsAbs(arg) {
		candidates = append(candidates, filepath.Join(cfg.FlowsDir, arg))
	}
	if filepath.Ext(arg) == "" {
		for _, c := range append([]string(nil), candidates...) {
			candidates = append(candidates, c+".yaml", c+".yml")
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("flow not found: %s (looked in %s)", arg, strings.Join(candidates, ", "))
}
