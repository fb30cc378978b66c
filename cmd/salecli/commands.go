package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/pricing"
	"github.com/ligun0805/salekit/internal/purchase"
	"github.com/ligun0805/salekit/internal/saleerr"
)

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <address>",
		Short: "Profile a sale contract: token, price, limits and purchase function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context) error {
				prof, err := a.sess.Inspect(ctx, addr)
				if err != nil {
					return err
				}
				printProfile(a.out, prof)
				return nil
			})
		},
	}
}

func (a *app) balanceCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the native balance of the wallet account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				r, err := a.sess.Balance(ctx, force)
				if err != nil && !r.Known() {
					return err
				}
				printBalance(a.out, a.sess.Account().Hex(), r)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the cache")
	return cmd
}

func (a *app) endpointsCmd() *cobra.Command {
	list := func(cmd *cobra.Command, _ []string) error {
		return a.run(cmd, func(context.Context) error {
			printEndpoints(a.out, a.sess.Endpoints())
			if until, ok := a.sess.WalletPausedUntil(); ok {
				fmt.Fprintf(a.out, "wallet endpoint rate limited until %s\n", until.Format(time.TimeOnly))
			}
			return nil
		})
	}
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoints in the order reads try them",
		Args:  cobra.NoArgs,
		RunE:  list,
	}

	var priority int
	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a public RPC endpoint for the current chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(context.Context) error {
				a.sess.AddEndpoint(args[0], priority)
				a.store.add(a.st.ChainID, args[0], priority)
				if err := a.store.save(); err != nil {
					return fmt.Errorf("save endpoints: %w", err)
				}
				printEndpoints(a.out, a.sess.Endpoints())
				return nil
			})
		},
	}
	add.Flags().IntVar(&priority, "priority", -1, "lower is tried first; catalog endpoints have 0")

	remove := &cobra.Command{
		Use:   "remove <url>",
		Short: "Stop using an endpoint for the current chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(context.Context) error {
				a.sess.RemoveEndpoint(args[0])
				a.store.remove(a.st.ChainID, args[0])
				if err := a.store.save(); err != nil {
					return fmt.Errorf("save endpoints: %w", err)
				}
				printEndpoints(a.out, a.sess.Endpoints())
				return nil
			})
		},
	}
	cmd.AddCommand(add, remove)
	return cmd
}

func (a *app) buyCmd() *cobra.Command {
	var (
		semantics string
		assumeYes bool
	)
	cmd := &cobra.Command{
		Use:   "buy <address> <quantity>",
		Short: "Buy whole tokens from a sale contract",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}
			sem, err := pricing.ParseSemantics(semantics)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context) error {
				a.sess.OnProgress(func(s purchase.Stage) {
					if s.Terminal() {
						fmt.Fprintf(a.out, "== %s\n", s)
						return
					}
					fmt.Fprintf(a.out, "-> %s\n", s)
				})
				rcpt, err := a.sess.Buy(ctx, addr, qty, purchase.Options{
					Semantics:        sem,
					Confirm:          a.confirmSemantics(assumeYes),
					ConfirmUnbounded: a.confirmUnbounded(assumeYes),
				})
				if rcpt != nil {
					printReceipt(a.out, rcpt)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&semantics, "semantics", "auto", "price interpretation: auto, A (per whole token) or B (per minimal unit)")
	cmd.Flags().BoolVar(&assumeYes, "yes", false, "accept an unconfirmed price interpretation and unreadable sale limits without asking")
	return cmd
}

func (a *app) confirmSemantics(assumeYes bool) func(context.Context, pricing.Resolution) bool {
	return func(_ context.Context, res pricing.Resolution) bool {
		printCandidates(a.out, res)
		if assumeYes {
			a.log.Info("unconfirmed semantics accepted by --yes", zap.Stringer("semantics", res.Semantics))
			return true
		}
		return yes(readLine(a.in, a.out, "Send anyway? [y/N]: "))
	}
}

func (a *app) confirmUnbounded(assumeYes bool) func(context.Context, []saleerr.Bound) bool {
	return func(_ context.Context, unknown []saleerr.Bound) bool {
		fmt.Fprintf(a.out, "The sale does not expose these limits: %s. They will be treated as unbounded.\n", joinBounds(unknown))
		if assumeYes {
			a.log.Info("unknown sale limits accepted by --yes", zap.String("bounds", joinBounds(unknown)))
			return true
		}
		return yes(readLine(a.in, a.out, "Continue? [y/N]: "))
	}
}
