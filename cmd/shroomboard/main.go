// ABOUTME: CLI entrypoint for the shroomboard daemon: board storage, run ledger,
// ABOUTME: generation pipeline, rule engine, and HTTP server wired from environment config.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sporelabs/shroomboard/engine"
	"github.com/sporelabs/shroomboard/ledger"
	"github.com/sporelabs/shroomboard/llm"
	"github.com/sporelabs/shroomboard/server"
	"github.com/sporelabs/shroomboard/store"
	"github.com/sporelabs/shroomboard/web"
)

var version = "dev"

func main() {
	if err := server.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	showVersion := flag.Bool("version", false, "Print version and exit")
	home := flag.String("home", "", "Data directory (overrides SHROOMBOARD_HOME)")
	bind := flag.String("bind", "", "Listen address (overrides SHROOMBOARD_BIND)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shroomboard %s\n", version)
		os.Exit(0)
	}

	if *home != "" {
		os.Setenv("SHROOMBOARD_HOME", *home)
	}
	if *bind != "" {
		os.Setenv("SHROOMBOARD_BIND", *bind)
	}

	os.Exit(run())
}

func run() int {
	cfg, err := server.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if cfg.Home == "" {
		cfg.Home, err = defaultDataDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}
	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: creating data directory: %v\n", err)
		return 1
	}

	boards, err := store.Open(filepath.Join(cfg.Home, "shroomboard.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening board store: %v\n", err)
		return 1
	}
	defer boards.Close()

	runs, err := ledger.NewRunLedger(filepath.Join(cfg.Home, "runs"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening run ledger: %v\n", err)
		return 1
	}
	defer runs.Close()

	pool := engine.DefaultFallbackPool()
	if cfg.FallbackPool != "" {
		pool, err = engine.LoadFallbackPool(cfg.FallbackPool)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: loading fallback pool: %v\n", err)
			return 1
		}
	}

	// The daemon starts without a backend credential; generation endpoints
	// answer 503 until one is configured.
	var client *llm.Client
	var gen *engine.Generator
	var rules *engine.RuleEngine
	var completer engine.Completer

	client, err = llm.FromEnv()
	if err != nil {
		log.Printf("component=main action=llm_init result=disabled error=%v", err)
	} else {
		defer client.Close()
		completer = client

		genOpts := []engine.GeneratorOption{
			engine.WithFallbackPool(pool),
			engine.WithUsageHook(func(u llm.Usage) {
				log.Printf("component=main action=usage input_tokens=%d output_tokens=%d", u.InputTokens, u.OutputTokens)
			}),
		}
		if cfg.DefaultModel != "" {
			genOpts = append(genOpts, engine.WithModel(cfg.DefaultModel))
		}
		if searcher, ok := client.Searcher(); ok {
			genOpts = append(genOpts, engine.WithSearcher(searcher))
		}
		gen = engine.NewGenerator(client, genOpts...)

		var ruleOpts []engine.RuleEngineOption
		if cfg.DefaultModel != "" {
			ruleOpts = append(ruleOpts, engine.WithRuleModel(cfg.DefaultModel))
		}
		rules = engine.NewRuleEngine(boards, runs, gen, client, ruleOpts...)
	}

	srv, err := web.NewServer(web.ServerConfig{
		Addr:      cfg.Bind,
		AuthToken: cfg.AuthToken,
		Model:     cfg.DefaultModel,
		Repo:      boards,
		Runs:      runs,
		Generator: gen,
		Rules:     rules,
		Client:    completer,
		Quota:     server.NewQuota(boards, cfg.DailyQuota),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	log.Printf("component=main action=start version=%s home=%s url=%s", version, cfg.Home, cfg.PublicBaseURL)

	select {
	case <-sigChan:
		log.Printf("component=main action=shutdown reason=signal")
		return 0
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}
}
