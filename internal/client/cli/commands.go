// internal/client/cli/commands.go
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/internal/client/cartsync"
)

// ErrNotSignedIn / ErrAlreadySignedIn guard login state transitions.
var (
	ErrNotSignedIn     = errors.New("not signed in")
	ErrAlreadySignedIn = errors.New("already signed in; run logout first")
)

// withApp opens the tab state, runs fn and flushes the state file.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func parseQty(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("quantity %q is not a number", s)
	}
	return n, nil
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Fetch and print the current cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				if err := a.cart.FetchCart(cmd.Context()); err != nil {
					return err
				}
				return a.print(a.cart.Snapshot(), nil)
			})
		},
	}
}

func newAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <productId> [quantity]",
		Short: "Add a product to the cart (quantity defaults to 1)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty := 1
			if len(args) == 2 {
				n, err := parseQty(args[1])
				if err != nil {
					return err
				}
				qty = n
			}
			return withApp(opts, cmd, func(a *app) error {
				if err := a.cart.AddItem(cmd.Context(), args[0], qty); err != nil {
					return err
				}
				return a.print(a.cart.Snapshot(), nil)
			})
		},
	}
}

func newSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <productId> <quantity>",
		Short: "Set a product's quantity (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQty(args[1])
			if err != nil {
				return err
			}
			return withApp(opts, cmd, func(a *app) error {
				if err := a.cart.UpdateQuantity(cmd.Context(), args[0], qty); err != nil {
					return err
				}
				return a.print(a.cart.Snapshot(), nil)
			})
		},
	}
}

func newRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <productId>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				if err := a.cart.RemoveItem(cmd.Context(), args[0]); err != nil {
					return err
				}
				return a.print(a.cart.Snapshot(), nil)
			})
		},
	}
}

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and synchronize the guest cart into the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("--token is required")
			}
			return withApp(opts, cmd, func(a *app) error {
				if a.token() != "" {
					return ErrAlreadySignedIn
				}

				// The guest cart lives on the server; load it so the merge
				// payload reflects what this tab holds.
				if _, ok := a.sess.GuestSessionID(); ok {
					if err := a.cart.FetchCart(cmd.Context()); err != nil {
						a.log.Warn("guest cart fetch before login failed", zap.Error(err))
					}
				}

				a.store.Set(KeyIDToken, token)
				res := a.orch.Sync(cmd.Context(), cartsync.AuthEvent{IsAuthenticated: true, AuthJustChanged: true})
				if err := a.print(a.cart.Snapshot(), &res); err != nil {
					return err
				}
				return resultErr(res)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "ID token of the user (required)")
	return cmd
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and start a fresh guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				if a.token() == "" {
					return ErrNotSignedIn
				}
				a.store.Delete(KeyIDToken)
				a.logout.HandleLogout()
				return a.print(a.cart.Snapshot(), nil)
			})
		},
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the cart with the Cart Service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				if a.token() == "" {
					if err := a.cart.FetchCart(cmd.Context()); err != nil {
						return err
					}
					return a.print(a.cart.Snapshot(), nil)
				}
				res := a.orch.Sync(cmd.Context(), cartsync.AuthEvent{IsAuthenticated: true})
				if err := a.print(a.cart.Snapshot(), &res); err != nil {
					return err
				}
				return resultErr(res)
			})
		},
	}
}

func newRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry a failed synchronization (fetch only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				res := a.orch.TriggerSync(cmd.Context())
				if err := a.print(a.cart.Snapshot(), &res); err != nil {
					return err
				}
				return resultErr(res)
			})
		},
	}
}

func resultErr(res cartsync.Result) error {
	if res.Success {
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("sync (%s): %w", res.Action, res.Err)
	}
	return fmt.Errorf("sync (%s) failed", res.Action)
}
