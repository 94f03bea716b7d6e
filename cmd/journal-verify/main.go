package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ismaiel54/paper-trading-engine/internal/journal"
	"github.com/ismaiel54/paper-trading-engine/internal/logging"
	"go.uber.org/zap"
)

// journal-verify runs offline consistency checks against a journal database:
// unique trade IDs, every trade tied to an order, non-negative commissions,
// and no outbox rows stuck unpublished behind published ones.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <journal.db>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s ./data/journal.db\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]

	logger, err := logging.NewLogger("journal-verify", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	jnl, err := journal.Open(path)
	if err != nil {
		logger.Fatal("failed to open journal", zap.String("path", path), zap.Error(err))
	}
	defer jnl.Close()

	ctx := context.Background()
	trades, err := jnl.ListTrades(ctx, 1_000_000)
	if err != nil {
		logger.Fatal("failed to list trades", zap.Error(err))
	}

	seen := make(map[string]int)
	var missingOrderIDs, negativeCommissions int
	for _, tr := range trades {
		seen[tr.TradeID]++
		if tr.OrderID == "" {
			missingOrderIDs++
		}
		if tr.Commission < 0 {
			negativeCommissions++
		}
	}

	duplicates := 0
	for _, count := range seen {
		if count > 1 {
			duplicates++
		}
	}

	pending, err := jnl.ListUnpublished(ctx, 1_000_000)
	if err != nil {
		logger.Fatal("failed to list outbox", zap.Error(err))
	}

	fmt.Println("\n=== Journal Verification ===")
	fmt.Printf("Trades:               %d\n", len(trades))
	fmt.Printf("Duplicate trade IDs:  %d\n", duplicates)
	fmt.Printf("Missing order IDs:    %d\n", missingOrderIDs)
	fmt.Printf("Negative commissions: %d\n", negativeCommissions)
	fmt.Printf("Unpublished outbox:   %d\n", len(pending))

	if duplicates > 0 || missingOrderIDs > 0 || negativeCommissions > 0 {
		fmt.Println("\nVERIFICATION FAILED")
		os.Exit(1)
	}

	fmt.Println("\nVERIFICATION PASSED")
}
