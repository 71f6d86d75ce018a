// earnbot moves idle funds between Bitget flexible savings and trading
// accounts: redeem-and-buy, sell-and-deposit, and the futures equivalents.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/internal/journal"
	"github.com/betbot/earnbot/internal/workflow"
	"github.com/betbot/earnbot/pkg/bitget"
	"github.com/betbot/earnbot/pkg/bitget/earn"
	"github.com/betbot/earnbot/pkg/bitget/market"
	"github.com/betbot/earnbot/pkg/bitget/mix"
	"github.com/betbot/earnbot/pkg/bitget/spot"
	"github.com/betbot/earnbot/pkg/config"
	"github.com/betbot/earnbot/pkg/logger"
	"github.com/betbot/earnbot/pkg/secretstore"
	"github.com/betbot/earnbot/pkg/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: earnbot [-config file] <command> [flags]

commands:
  buy      redeem savings and buy on spot
  sell     sell on spot and deposit proceeds into savings
  enter    redeem savings and open a futures position
  exit     close a futures position and deposit freed margin
  balance  show savings, spot and futures balances for a coin
  journal  list recorded workflow results
  secrets  import BITGET_* credentials from the environment into the secret store
`)
}

func run() error {
	configPath := flag.String("config", "config.yaml", "config file path")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		return fmt.Errorf("command required")
	}

	// A missing .env file is fine; plain environment variables still apply.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("received %v, cancelling", sig)
		cancel()
	}()

	sd := shutdown.NewManager()
	defer func() {
		sdCtx, sdCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer sdCancel()
		sd.Shutdown(sdCtx)
	}()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "secrets":
		return importSecrets(cfg)
	case "journal":
		// Badger holds a directory lock, so the journal must not be
		// opened twice; list it before the orchestrator wiring below.
		return runJournal(cfg)
	}

	creds, err := loadCredentials(cfg)
	if err != nil {
		return err
	}
	client := bitget.NewClient(bitget.Options{
		Host:        cfg.Exchange.Host,
		Credentials: creds,
		Timeout:     cfg.Exchange.Timeout(),
		RateLimit:   cfg.Exchange.RateLimitPerSec,
		Locale:      cfg.Exchange.Locale,
	})

	adjuster, err := market.Load(ctx, client)
	if err != nil {
		return err
	}
	earnSvc := earn.NewService(client)
	spotSvc := spot.NewService(client, adjuster)
	mixSvc := mix.NewService(client, adjuster)

	opts := workflow.Options{
		SettleInterval: cfg.Workflow.SettleInterval(),
		SettleTimeout:  cfg.Workflow.SettleTimeout(),
	}
	if !cfg.Journal.Disabled {
		j, err := journal.Open(journal.Options{Path: cfg.Journal.Path})
		if err != nil {
			return err
		}
		sd.OnShutdown(func(context.Context) {
			if err := j.Close(); err != nil {
				logger.Errorf("close journal: %v", err)
			}
		})
		opts.Recorder = j
	}
	orch := workflow.New(earnSvc, spotSvc, mixSvc, adjuster, opts)

	switch cmd {
	case "buy":
		return runBuy(ctx, orch, args)
	case "sell":
		return runSell(ctx, orch, args)
	case "enter":
		return runEnter(ctx, orch, cfg, args)
	case "exit":
		return runExit(ctx, orch, cfg, args)
	case "balance":
		return runBalance(ctx, earnSvc, spotSvc, mixSvc, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadCredentials(cfg *config.Config) (bitget.Credentials, error) {
	if creds, ok := config.CredentialsFromEnv(); ok {
		return creds, nil
	}
	if cfg.Secrets.Path == "" {
		return bitget.Credentials{}, fmt.Errorf("no credentials: set BITGET_API_KEY/BITGET_API_SECRET/BITGET_PASSPHRASE or configure secrets.path")
	}
	key, err := secretstore.ParseKey(os.Getenv(cfg.Secrets.KeyEnv))
	if err != nil {
		return bitget.Credentials{}, err
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Secrets.Path,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return bitget.Credentials{}, err
	}
	defer store.Close()
	return store.Credentials()
}

func importSecrets(cfg *config.Config) error {
	creds, ok := config.CredentialsFromEnv()
	if !ok {
		return fmt.Errorf("BITGET_API_KEY, BITGET_API_SECRET and BITGET_PASSPHRASE must all be set")
	}
	if cfg.Secrets.Path == "" {
		return fmt.Errorf("secrets.path is not configured")
	}
	key, err := secretstore.ParseKey(os.Getenv(cfg.Secrets.KeyEnv))
	if err != nil {
		return err
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Secrets.Path,
		EncryptionKey: key,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SetCredentials(creds); err != nil {
		return err
	}
	fmt.Printf("credentials stored in %s\n", cfg.Secrets.Path)
	return nil
}

func runBuy(ctx context.Context, orch *workflow.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	symbol := fs.String("symbol", "", "spot symbol, e.g. BTCUSDT")
	coin := fs.String("coin", "USDT", "quote coin held in savings")
	amount := fs.String("amount", "", "quote amount to redeem and spend")
	orderType := fs.String("type", spot.TypeMarket, "order type: market or limit")
	price := fs.String("price", "", "limit price")
	_ = fs.Parse(args)

	amt, err := parseAmount(*amount)
	if err != nil {
		return err
	}
	params := workflow.BuyFromSavingsParams{
		Symbol:    *symbol,
		QuoteCoin: *coin,
		Amount:    amt,
		OrderType: *orderType,
	}
	if *price != "" {
		if params.Price, err = decimal.NewFromString(*price); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}
	res, runErr := orch.BuyFromSavings(ctx, params)
	printResult(res)
	return runErr
}

func runSell(ctx context.Context, orch *workflow.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("sell", flag.ExitOnError)
	symbol := fs.String("symbol", "", "spot symbol, e.g. BTCUSDT")
	coin := fs.String("coin", "USDT", "quote coin to deposit")
	amount := fs.String("amount", "", "base quantity to sell")
	orderType := fs.String("type", spot.TypeMarket, "order type: market or limit")
	price := fs.String("price", "", "limit price")
	_ = fs.Parse(args)

	amt, err := parseAmount(*amount)
	if err != nil {
		return err
	}
	params := workflow.SellToSavingsParams{
		Symbol:     *symbol,
		QuoteCoin:  *coin,
		AmountBase: amt,
		OrderType:  *orderType,
	}
	if *price != "" {
		if params.Price, err = decimal.NewFromString(*price); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}
	res, runErr := orch.SellToSavings(ctx, params)
	printResult(res)
	return runErr
}

func runEnter(ctx context.Context, orch *workflow.Orchestrator, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("enter", flag.ExitOnError)
	symbol := fs.String("symbol", "", "futures symbol, e.g. BTCUSDT")
	amount := fs.String("amount", "", "margin-coin notional to deploy")
	side := fs.String("side", workflow.SideLong, "position side: long or short")
	orderType := fs.String("type", spot.TypeMarket, "order type: market or limit")
	price := fs.String("price", "", "limit price")
	_ = fs.Parse(args)

	amt, err := parseAmount(*amount)
	if err != nil {
		return err
	}
	params := workflow.EnterPositionParams{
		Symbol:     *symbol,
		MarginCoin: cfg.Workflow.MarginCoin,
		MarginMode: cfg.Workflow.MarginMode,
		Amount:     amt,
		Side:       *side,
		OrderType:  *orderType,
	}
	if *price != "" {
		if params.Price, err = decimal.NewFromString(*price); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}
	res, runErr := orch.EnterPositionFromSavings(ctx, params)
	printResult(res)
	return runErr
}

func runExit(ctx context.Context, orch *workflow.Orchestrator, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("exit", flag.ExitOnError)
	symbol := fs.String("symbol", "", "futures symbol, e.g. BTCUSDT")
	size := fs.String("size", "", "base quantity to close")
	side := fs.String("side", workflow.SideLong, "side of the position being closed")
	orderType := fs.String("type", spot.TypeMarket, "order type: market or limit")
	price := fs.String("price", "", "limit price")
	_ = fs.Parse(args)

	sz, err := parseAmount(*size)
	if err != nil {
		return err
	}
	params := workflow.ExitPositionParams{
		Symbol:     *symbol,
		MarginCoin: cfg.Workflow.MarginCoin,
		MarginMode: cfg.Workflow.MarginMode,
		SizeBase:   sz,
		Side:       *side,
		OrderType:  *orderType,
	}
	if *price != "" {
		if params.Price, err = decimal.NewFromString(*price); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}
	res, runErr := orch.ExitPositionToSavings(ctx, params)
	printResult(res)
	return runErr
}

func runBalance(ctx context.Context, earnSvc *earn.Service, spotSvc *spot.Service, mixSvc *mix.Service, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	coin := fs.String("coin", "USDT", "coin to report")
	_ = fs.Parse(args)

	hold, err := earnSvc.FlexibleHoldAmount(ctx, *coin)
	if err != nil {
		return err
	}
	asset, err := spotSvc.Assets(ctx, *coin)
	if err != nil {
		return err
	}
	balance, err := mixSvc.Accounts(ctx, *coin)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n  savings:   %s\n  spot:      %s\n  futures:   %s\n",
		*coin, hold, asset.Available, balance.Available)
	return nil
}

func runJournal(cfg *config.Config) error {
	if cfg.Journal.Disabled {
		return fmt.Errorf("journal is disabled in config")
	}
	j, err := journal.Open(journal.Options{Path: cfg.Journal.Path})
	if err != nil {
		return err
	}
	defer j.Close()
	entries, err := j.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s %s %s\n", e.RecordedAt.Format("2006-01-02 15:04:05"), e.WorkflowID, e.Result)
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("amount is required")
	}
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount: %w", err)
	}
	return amt, nil
}

func printResult(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
