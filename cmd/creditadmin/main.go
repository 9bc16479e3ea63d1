package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yoppiari/loopingflow/internal/credits"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/store"
)

// creditadmin grants credits to a user outside the job flow, for support
// and promotional top-ups. Run with -amount 0 to just print the balance.
func main() {
	var (
		idFlag     string
		amountFlag int
		reasonFlag string
	)

	flag.StringVar(&idFlag, "id", "", "user ID to credit (UUID)")
	flag.IntVar(&amountFlag, "amount", 0, "credits to grant (0 shows the current balance)")
	flag.StringVar(&reasonFlag, "reason", "manual grant", "ledger reason for the grant")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	if userID == "" {
		exitWithError(errors.New("-id is required"))
	}
	if amountFlag < 0 {
		exitWithError(errors.New("-amount must not be negative"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "creditadmin").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	st := store.New(runner)
	user, err := st.User(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	if amountFlag == 0 {
		fmt.Printf("User %s (%s) balance=%d\n", user.ID, user.Email, user.CreditBalance)
		return
	}

	ledger := credits.NewLedger(runner)
	balance, err := ledger.Grant(ctx, user.ID, amountFlag, reasonFlag)
	if err != nil {
		exitWithError(fmt.Errorf("failed to grant credits: %w", err))
	}

	fmt.Printf("User %s (%s) granted %d credits, balance=%d\n", user.ID, user.Email, amountFlag, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
