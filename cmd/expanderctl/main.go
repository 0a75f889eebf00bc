package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/expanse-labs/expander-go/internal/auth"
	"github.com/expanse-labs/expander-go/internal/expander"
	"github.com/expanse-labs/expander-go/internal/exporter"
	"github.com/expanse-labs/expander-go/internal/httpclient"
	"github.com/expanse-labs/expander-go/internal/publisher"
	"github.com/expanse-labs/expander-go/internal/rate"
	credres "github.com/expanse-labs/expander-go/internal/secrets"
	"github.com/expanse-labs/expander-go/internal/store"
	"github.com/expanse-labs/expander-go/pkg/config"
	"github.com/expanse-labs/expander-go/pkg/logger"
	"github.com/expanse-labs/expander-go/pkg/secrets"
)

const usage = `usage: expanderctl <command> [args]

commands:
  token                          print a fresh ID token
  list-exposures                 list exposed IP/ports
  list-events <start> <end>      list events for a YYYY-MM-DD date window
  list-cloud-assets              list cloud IP assets
  list-onprem-assets             list on-prem IP assets
  export                         run the NATS event exporter until interrupted
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()

	creds, err := resolveCredentials(ctx, cfg)
	if err != nil {
		logg.Fatalw("failed to resolve credentials", "error", err)
	}

	provider := auth.NewProvider(logger.L(), creds, cfg.BaseURL, cfg.HTTPTimeout, cfg.TokenSkew)

	// --- Optional Redis-backed token/checkpoint store ---
	var st store.Store
	if cfg.RedisAddr != "" {
		st, err = store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger.L())
		if err != nil {
			logg.Fatalw("failed to init store", "error", err)
		}
		defer st.Close() //nolint:errcheck
		provider.SetBundleCache(st)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RatePerSecond,
		Burst:             cfg.RateBurst,
		Cooldown:          1 * time.Second,
	})

	// --- Authorized executor + Expander client ---
	exec := httpclient.New(logger.L(), rateMgr, &http.Client{Timeout: cfg.HTTPTimeout}, provider, cfg.RetryOn401)
	client := expander.NewClient(logger.L(), exec, cfg.BaseURL)

	switch os.Args[1] {
	case "token":
		tok, err := provider.TokenInfo(ctx)
		if err != nil {
			logg.Fatalw("login failed", "error", err)
		}
		fmt.Println(tok.Value)

	case "list-exposures":
		printPages(ctx, client.ListExposures(expander.ExposureParams{Limit: cfg.PageLimit}))

	case "list-events":
		if len(os.Args) < 4 {
			logg.Fatalw("list-events requires <start> and <end> dates (YYYY-MM-DD)")
		}
		pages, err := client.ListEvents(expander.EventParams{
			StartDate: os.Args[2],
			EndDate:   os.Args[3],
			Limit:     cfg.PageLimit,
		})
		if err != nil {
			logg.Fatalw("invalid event window", "error", err)
		}
		printPages(ctx, pages)

	case "list-cloud-assets":
		printPages(ctx, client.ListCloudAssets(expander.AssetParams{Limit: cfg.PageLimit}))

	case "list-onprem-assets":
		printPages(ctx, client.ListOnPremAssets(expander.AssetParams{Limit: cfg.PageLimit}))

	case "export":
		if st == nil {
			logg.Fatalw("export requires REDIS_ADDR for checkpointing")
		}
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		defer nc.Close()

		pub, err := publisher.New(nc, cfg.ExportSubject, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		if err := pub.EnsureStream(cfg.ExportStream, cfg.ExportSubject); err != nil {
			logg.Fatalw("failed to ensure stream", "error", err)
		}

		exp := exporter.New(
			logger.L(),
			client,
			pub,
			st,
			cfg.ExportSubject,
			cfg.ServiceName,
			cfg.ExportInterval,
			cfg.ExportWindow,
			cfg.PageLimit,
		)
		if err := exp.Run(ctx); err != nil && ctx.Err() == nil {
			logg.Fatalw("exporter stopped", "error", err)
		}
		logg.Infow("exporter shut down")

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// resolveCredentials loads the API key/secret from AWS Secrets Manager when
// EXPANDER_SECRET_NAME is set, otherwise from the environment. A secret name
// with a trailing "/" is a prefix; the resolver discovers the concrete secret
// and requires exactly one match.
func resolveCredentials(ctx context.Context, cfg *config.Config) (*auth.CredentialStore, error) {
	if cfg.SecretName == "" {
		return auth.CredentialsFromConfig(cfg)
	}

	provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	cache := secrets.NewCache[auth.Credential](cfg.CacheTTL)
	go cache.StartCleaner(10*time.Minute, ctx.Done())

	resolver := credres.NewResolver(logger.L(), provider, cache)
	return resolver.Resolve(ctx, cfg.SecretName)
}

// printPages streams every page of a listing to stdout as indented JSON.
func printPages[T any](ctx context.Context, pages *expander.Pages[T]) {
	logg := logger.S()
	total := 0
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			logg.Fatalw("request failed", "error", err)
		}
		out, err := json.MarshalIndent(page.Items, "", "  ")
		if err != nil {
			logg.Fatalw("encode page", "error", err)
		}
		fmt.Println(string(out))

		total += len(page.Items)
		logg.Infow("page loaded",
			"page_items", len(page.Items),
			"total", total,
			"total_count", page.TotalCount,
		)
	}
	logg.Infow("listing complete", "total", total)
}
