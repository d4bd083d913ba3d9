package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "stockgame/internal/cli"
	"stockgame/internal/config"
	"stockgame/internal/game"
	"stockgame/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type env struct {
	cfg config.CLIConfig
}

func main() {
	config.LoadDotEnv()
	e := &env{cfg: config.LoadCLIFromEnv()}
	configureColor()

	root := &cobra.Command{
		Use:          "stk",
		Short:        "Stock portfolio game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&e.cfg.APIBaseURL, "api", e.cfg.APIBaseURL, "game API base URL")
	root.PersistentFlags().StringVar(&e.cfg.Home, "home", e.cfg.Home, "directory for session and offline queue")

	root.AddCommand(
		newRegisterCmd(e),
		newLogoutCmd(e),
		newDashCmd(e),
		newMarketCmd(e),
		newQuoteCmd(e),
		newBuyCmd(e),
		newSellCmd(e),
		newStartCmd(e),
		newResetCmd(e),
		newRefreshCmd(e),
		newLeaderboardCmd(e),
		newSyncCmd(e),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (e *env) client() *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(e.cfg.APIBaseURL), "/"), e.cfg.APIToken)
}

func (e *env) session() (cl.Session, error) {
	sess, err := cl.LoadSession(e.cfg.Home)
	if err != nil {
		return cl.Session{}, fmt.Errorf("player required: %w", err)
	}
	return sess, nil
}

func (e *env) queue() *syncq.Queue {
	return syncq.New(e.cfg.Home)
}

func newRegisterCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "register [phone]",
		Short: "Register or update your player profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			var err error
			if len(args) > 0 {
				id = strings.TrimSpace(args[0])
			} else if id, err = promptRequired("Phone number"); err != nil {
				return err
			}
			if id, err = game.NormalizePlayerID(id); err != nil {
				return err
			}
			name, err := promptRequired("Display name")
			if err != nil {
				return err
			}
			risk, err := promptChoice("Risk tolerance", []string{"low", "medium", "high"}, "medium")
			if err != nil {
				return err
			}
			sector, err := promptOptional("Preferred sector (optional)")
			if err != nil {
				return err
			}
			goal, err := promptChoice("Return goal", []string{"short", "long"}, "long")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := e.client().Register(ctx, cl.Registration{
				ID:              id,
				DisplayName:     name,
				RiskTolerance:   risk,
				PreferredSector: sector,
				ReturnGoal:      goal,
			})
			if err != nil {
				return err
			}
			if err := cl.SaveSession(e.cfg.Home, cl.Session{PlayerID: snap.Profile.ID, DisplayName: snap.Profile.DisplayName}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Registered %s. Buy %d to %d stocks, then run `stk start`.", snap.Profile.DisplayName, game.MinStartHoldings, game.MaxHoldings))
			return nil
		},
	}
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the locally saved player",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(e.cfg.Home); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newDashCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show your portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := e.client().Dashboard(ctx, sess.PlayerID)
			if err != nil {
				return err
			}
			renderDashboard(out.Snapshot, out.Rank)
			return nil
		},
	}
}

func newMarketCmd(e *env) *cobra.Command {
	var (
		sector      string
		refresh     bool
		buyableOnly bool
	)
	cmd := &cobra.Command{
		Use:     "market",
		Short:   "Show ranked stock recommendations",
		Aliases: []string{"rankings"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := e.client().Rankings(ctx, sess.PlayerID, sector, refresh, buyableOnly)
			if err != nil {
				return err
			}
			renderRankings(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "only show one sector")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch fresh quotes before ranking")
	cmd.Flags().BoolVar(&buyableOnly, "buyable", false, "only show stocks you can buy one share of")
	return cmd
}

func newQuoteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "quote [symbol]",
		Short: "Show detail for one stock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := e.client().StockDetail(ctx, symbol)
			if err != nil {
				return err
			}
			renderStockDetail(out)
			return nil
		},
	}
}

func newBuyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [symbol] [shares]",
		Short: "Buy whole shares at the live price",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			qty, err := int64FromArgOrPrompt(args, 1, "Shares to buy")
			if err != nil {
				return err
			}
			return placeOrderCommand(cmd, e, "buy", symbol, qty)
		},
	}
}

func newSellCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sell [symbol]",
		Short: "Sell your whole position in a stock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			return placeOrderCommand(cmd, e, "sell", symbol, 0)
		},
	}
}

func placeOrderCommand(cmd *cobra.Command, e *env, side, symbol string, qty int64) error {
	sess, err := e.session()
	if err != nil {
		return err
	}
	idem := uuid.NewString()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := e.client().PlaceOrder(ctx, sess.PlayerID, symbol, side, qty, idem)
	if err != nil {
		return queueOnNetworkError(e, err, syncq.Order{
			PlayerID:       sess.PlayerID,
			Symbol:         symbol,
			Side:           side,
			Quantity:       qty,
			IdempotencyKey: idem,
		})
	}
	renderOrderResult(out)
	return nil
}

func newStartCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game with your current holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := e.client().Start(ctx, sess.PlayerID)
			if err != nil {
				return err
			}
			printSuccess("Game started with " + formatMoney(snap.StartValue) + ".")
			return nil
		},
	}
}

func newResetCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Start over after game over, or clear holdings before starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			if !yes {
				choice, err := promptChoice("Reset portfolio", []string{"yes", "no"}, "no")
				if err != nil {
					return err
				}
				if choice != "yes" {
					printInfo("Reset cancelled.")
					return nil
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := e.client().Reset(ctx, sess.PlayerID)
			if err != nil {
				return err
			}
			printSuccess("Portfolio reset. Cash: " + formatMoney(snap.Cash))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newRefreshCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Revalue holdings at live prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := e.client().Refresh(ctx, sess.PlayerID)
			if err != nil {
				return err
			}
			renderDashboard(snap, 0)
			return nil
		},
	}
}

func newLeaderboardCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Global leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := e.client().Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			me := ""
			if sess, err := cl.LoadSession(e.cfg.Home); err == nil {
				me = sess.PlayerID
			}
			renderLeaderboard(rows, me)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to show")
	return cmd
}

func newSyncCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay orders queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := e.queue()
			pending, err := q.Load()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := e.client()
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			rep, err := q.Drain(ctx, func(ctx context.Context, o syncq.Order) error {
				_, err := client.PlaceOrder(ctx, o.PlayerID, o.Symbol, o.Side, o.Quantity, o.IdempotencyKey)
				return err
			}, cl.IsRetryable)
			if err != nil {
				return err
			}
			for _, f := range rep.Dropped {
				printError(fmt.Sprintf("Dropped %s %s: %v", f.Order.Side, f.Order.Symbol, f.Err))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", rep.Sent, len(rep.Dropped), rep.Kept))
			return nil
		},
	}
}

// queueOnNetworkError keeps an order for `stk sync` when the API or its
// quote gateway could not be reached. Rejections are returned as is.
func queueOnNetworkError(e *env, err error, order syncq.Order) error {
	if err == nil {
		return nil
	}
	if !cl.IsRetryable(err) {
		return err
	}
	if qerr := e.queue().Push(order); qerr != nil {
		return fmt.Errorf("request failed and could not be queued (%v): %w", qerr, err)
	}
	printWarn(fmt.Sprintf("Market unreachable, %s %s queued. Run `stk sync` later.", order.Side, order.Symbol))
	return nil
}

func symbolFromArgsOrPrompt(args []string) (string, error) {
	if len(args) > 0 {
		symbol := game.NormalizeSymbol(args[0])
		if err := game.ValidateSymbol(symbol); err != nil {
			return "", err
		}
		return symbol, nil
	}
	return promptSymbol("Symbol")
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}
