package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"nihhunt.ai/internal/config"
)

func main() {
	var (
		addr           = flag.String("addr", envString("NH_ADDR", "127.0.0.1:8787"), "http listen address (host link at /v1/host)")
		configPath     = flag.String("config", envString("NH_CONFIG", ""), "path to hunt.yaml (optional)")
		dataDir        = flag.String("data", envString("NH_DATA", "./data"), "runtime data directory")
		disableDB      = flag.Bool("disable_db", envBool("NH_DISABLE_DB", false), "disable the sqlite outcome index")
		disableJournal = flag.Bool("disable_journal", envBool("NH_DISABLE_JOURNAL", false), "disable the outcome journal")
		quiet          = flag.Bool("quiet", false, "do not echo notices to stdout")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[hunt] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	opts := runtimeOptions{DataDir: *dataDir, DisableDB: *disableDB, DisableJournal: *disableJournal}
	if !*quiet {
		opts.Console = os.Stdout
	}
	rt, err := buildRuntime(cfg, opts, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           rt.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.session.Run(gctx)
	})
	g.Go(func() error {
		logger.Printf("listening on %s wanted=%s", *addr, rt.client.WantedURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	rt.syncer.Start(gctx)

	err = g.Wait()
	rt.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("hunt stopped: %v", err)
	}
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
