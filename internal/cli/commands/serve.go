package commands

import (
	"fmt"

	"github.com/seasr/flowkit/internal/webui"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run history web UI",
		Long: `Start a local web server showing recorded runs and their component
executions. Use "flowkit run --serve" to also host the fragments published
by running components.`,
		Example: `  # Start on the configured address
  flowkit serve

  # Start on a custom port
  flowkit serve --port 3000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cc.OpenStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			server := webui.NewServer(webui.Config{
				Host:   cc.Cfg.Web.Host,
				Port:   cc.Cfg.Web.Port,
				Store:  store,
				Logger: cc.Logger,
			})
			cc.Renderer.Printf("Starting web UI on http://%s\n", server.Addr())
			cc.Renderer.Println("Press Ctrl+C to stop")
			if err := server.Serve(cmd.Context()); err != nil {
				return fmt.Errorf("web UI: %w", err)
			}
			return nil
		},
	}
	return cmd
}
