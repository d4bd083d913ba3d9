package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	cl "stockgame/internal/cli"
	"stockgame/internal/game"
	"stockgame/internal/quotes"

	"github.com/Rhymond/go-money"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

// configureColor turns colour off when stdout is not a terminal or NO_COLOR
// is set.
func configureColor() {
	if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func promptSymbol(label string) (string, error) {
	for {
		symbol, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		symbol = game.NormalizeSymbol(symbol)
		if err := game.ValidateSymbol(symbol); err != nil {
			printWarn(err.Error())
			continue
		}
		return symbol, nil
	}
}

func renderDashboard(snap game.Snapshot, rank int64) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(snap.Profile.DisplayName))
	fmt.Printf("State:     %s\n", stateLabel(snap.State))
	fmt.Printf("Cash:      %s\n", formatMoney(snap.Cash))
	fmt.Printf("Holdings:  %s\n", formatMoney(snap.HoldingsValue))
	fmt.Printf("Total:     %s\n", formatMoney(snap.TotalValue))
	if snap.State != game.StateNotStarted {
		fmt.Printf("Return:    %s\n", colorizePercent(snap.ReturnPercent))
	}
	fmt.Printf("Invested:  %.1f%%\n", snap.InvestedPercent)
	if rank > 0 {
		fmt.Printf("Rank:      #%d\n", rank)
	}

	if len(snap.Holdings) == 0 {
		printInfo("\nNo holdings yet. Try `stk market` for ideas.")
	} else {
		fmt.Printf("\n%-8s %-24s %8s %12s %12s %14s %9s\n", "SYMBOL", "NAME", "SHARES", "BOUGHT", "PRICE", "VALUE", "CHANGE")
		nameWidth := 24
		if terminalWidth() < 96 {
			nameWidth = 12
		}
		for _, h := range snap.Holdings {
			fmt.Printf("%-8s %-24s %8d %12s %12s %14s %9s\n",
				h.Symbol,
				truncate(h.Name, nameWidth),
				h.Shares,
				formatMoney(h.PurchasePrice),
				formatMoney(h.CurrentPrice),
				formatMoney(h.Value),
				colorizePercent(h.ChangePercent),
			)
		}
	}

	for _, a := range snap.Advisories {
		printWarn("! " + a)
	}
	if snap.LastAdvisory != "" {
		printWarn("! " + snap.LastAdvisory)
	}
	fmt.Println()
}

func renderRankings(out cl.Rankings) {
	accent.Println("\n== MARKET ==")
	if out.Advisory != "" {
		printWarn(out.Advisory)
	}
	if len(out.Rankings) == 0 {
		printInfo("No stocks to show.")
		return
	}
	fmt.Printf("%-4s %-8s %-22s %-16s %7s %12s %9s %s\n", "#", "SYMBOL", "NAME", "SECTOR", "SCORE", "PRICE", "CHANGE", "")
	for i, e := range out.Rankings {
		flag := ""
		if !e.Buyable {
			flag = danger.Sprint("over cap")
		}
		fmt.Printf("%-4d %-8s %-22s %-16s %7.1f %12s %9s %s\n",
			i+1,
			e.Symbol,
			truncate(e.Name, 22),
			truncate(e.Sector, 16),
			e.Score,
			formatMoney(e.Price),
			colorizePercent(e.ChangePercent),
			flag,
		)
	}
	fmt.Println()
}

func renderStockDetail(d quotes.StockDetail) {
	accent.Printf("\n== %s ==\n", d.Symbol)
	fmt.Printf("Name:       %s\n", d.Name)
	fmt.Printf("Price:      %s\n", formatMoney(d.Price))
	if d.MarketCap != nil {
		fmt.Printf("Market cap: %s\n", formatMoney(float64(*d.MarketCap)))
	}
	fmt.Printf("Sector:     %s\n", d.Sector)
	fmt.Printf("Industry:   %s\n", d.Industry)
	fmt.Println()
}

func renderOrderResult(res game.OrderResult) {
	verb := "Bought"
	if res.Side == "sell" {
		verb = "Sold"
	}
	printSuccess(fmt.Sprintf("%s %d %s @ %s (%s).", verb, res.Shares, res.Symbol, formatMoney(res.Price), formatMoney(res.Notional)))
	fmt.Printf("Cash: %s  Total: %s\n", formatMoney(res.Cash), formatMoney(res.TotalValue))
}

func renderLeaderboard(rows []game.LeaderboardEntry, me string) {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return
	}
	fmt.Printf("%-6s %-24s %10s %16s\n", "RANK", "PLAYER", "RETURN", "TOTAL")
	for _, row := range rows {
		line := fmt.Sprintf("%-6d %-24s %10s %16s",
			row.Rank,
			truncate(row.DisplayName, 24),
			colorizePercent(row.ReturnPercent),
			formatMoney(row.TotalValue),
		)
		if row.PlayerID == me {
			accent.Println(line)
			continue
		}
		fmt.Println(line)
	}
	fmt.Println()
}

func stateLabel(s game.GameState) string {
	switch s {
	case game.StateActive:
		return success.Sprint("active")
	case game.StateGameOver:
		return danger.Sprint("game over")
	default:
		return warn.Sprint("not started")
	}
}

// formatMoney renders a dollar amount with grouping, rounded to cents.
func formatMoney(v float64) string {
	cents := decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
