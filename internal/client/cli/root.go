// internal/client/cli/root.go
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	httpout "storefront/internal/adapters/out/http"
	"storefront/internal/client/cartstate"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	StatePath string
	ServerURL string
	Format    string // "json" | "text"
	Verbose   bool

	// NewService builds the Cart Service client. Tests swap it out.
	NewService func(baseURL string) cartstate.CartService
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "storefront", "cartsync.yaml")
	}
	return "cartsync.yaml"
}

func defaultServerURL() string {
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// NewRootCommand creates the root command of the cart sync client.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{NewService: newCartService})
}

// newCartService uses the client's own timeout so a stalled server surfaces
// as a network failure.
func newCartService(baseURL string) cartstate.CartService {
	return httpout.NewCartServiceClient(baseURL, nil)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cartsync",
		Short: "Storefront cart client",
		Long: "Drives a storefront cart from the terminal. The state file plays the role " +
			"of one browser tab: it holds the guest session id, the logout flag and the sign-in token.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if strings.TrimSpace(opts.StatePath) == "" {
				return fmt.Errorf("--state must not be empty")
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.StatePath, "state", defaultStatePath(), "tab state file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", defaultServerURL(), "Cart Service base URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging to stderr")

	// Add subcommands
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newSetCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))

	return cmd
}

// Execute runs the root command with args and writers; used by main and tests.
func Execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}
