// Package ui renders the live trading dashboard to the terminal, grounded
// on the teacher's fatih/color console helpers (internal/ui/console.go),
// generalized from a single-position scanner view to a multi-user,
// multi-strategy position table.
package ui

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"gridward/internal/position"
)

var (
	Green  = color.New(color.FgGreen).SprintfFunc()
	Red    = color.New(color.FgRed).SprintfFunc()
	Yellow = color.New(color.FgYellow).SprintfFunc()
	Cyan   = color.New(color.FgCyan).SprintfFunc()
	White  = color.New(color.FgWhite).SprintfFunc()

	BoldGreen = color.New(color.FgGreen, color.Bold).SprintfFunc()
	BoldRed   = color.New(color.FgRed, color.Bold).SprintfFunc()
	BoldCyan  = color.New(color.FgCyan, color.Bold).SprintfFunc()
)

// Console handles all user-visible terminal output.
type Console struct {
	UseTestnet bool
}

func NewConsole(useTestnet bool) *Console {
	return &Console{UseTestnet: useTestnet}
}

// PrintBanner displays the startup banner.
func (c *Console) PrintBanner(userCount int) {
	fmt.Println(Cyan("============================================================"))
	fmt.Printf("%s\n", BoldCyan("GRIDWARD"))
	fmt.Printf("%s Users configured: %d\n", White(""), userCount)
	mode := Red("PRODUCTION")
	if c.UseTestnet {
		mode = Green("TESTNET")
	}
	fmt.Printf("%s Mode: %s\n", White(""), mode)
	fmt.Println(Cyan("============================================================"))
}

func (c *Console) LogInfo(msg string) { c.logf(Green("INFO "), msg) }

func (c *Console) LogWarning(msg string) { c.logf(Yellow("WARN "), msg) }

func (c *Console) LogError(msg string) { c.logf(Red("ERROR"), msg) }

func (c *Console) logf(level, msg string) {
	fmt.Printf("%s | %s | %s\n", time.Now().Format("15:04:05"), level, msg)
}

// LogSignal prints a detected trade intent.
func (c *Console) LogSignal(user, symbol string, side position.Side, price float64) {
	colorFunc := BoldGreen
	if side == position.Short {
		colorFunc = BoldRed
	}
	fmt.Printf("%s | %s %s %s SIGNAL: %s | Price: %.6f\n",
		time.Now().Format("15:04:05"), user, colorFunc(string(side)), symbol, colorFunc(symbol), price)
}

// DisplayStore renders one line per in-position leaf of the store.
func (c *Console) DisplayStore(store *position.Store) {
	paths := store.Paths()
	var open []position.Path
	for _, p := range paths {
		if snap, ok := store.Get(p); ok && snap.InPosition {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		return
	}

	fmt.Printf("\n%s Open positions (%d):\n", White(""), len(open))
	for _, p := range open {
		full, ok := store.Full(p)
		if !ok {
			continue
		}
		avg := 0.0
		if full.AvgPrice != nil {
			avg = *full.AvgPrice
		}
		fmt.Printf("  %s/%s %s %s | qty=%.6f avg=%.6f step=%d/%d\n",
			p.User, p.Strategy, p.Symbol, string(p.Side), full.ComulQty, avg, full.AvgProgressCounter, full.AvgProgressReal)
	}
}
