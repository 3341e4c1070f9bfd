// ABOUTME: Serve command exposing sessions over HTTP
// ABOUTME: Runs the collaborator API and optional metrics endpoint until interrupted

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/llm-chat/internal/api"
	"github.com/2389/llm-chat/internal/dedupe"
)

const banner = `
 _ _               _           _
| | |_ __ ___  ___| |__   __ _| |_
| | | '_ ' _ \/ __| '_ \ / _' | __|
| | | | | | | \__ \ | | | (_| | |_
|_|_|_| |_| |_|___/_| |_|\__,_|\__|
`

const (
	shutdownTimeout = 10 * time.Second

	idempotencyWindow  = 10 * time.Minute
	idempotencyMaxKeys = 10000
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve configured sessions over an HTTP JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", rt.configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", rt.cfg.Server.HTTPAddr)
	for _, name := range rt.manager.Names() {
		sess, err := rt.manager.Get(name)
		if err != nil {
			continue
		}
		green.Print("    ▶ ")
		fmt.Printf("Session:   ")
		cyan.Print(name)
		gray.Printf(" (%s)\n", sess.Transport())
	}
	if rt.cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", rt.cfg.Metrics.Path)
	}
	fmt.Println()

	idem := dedupe.New(idempotencyWindow, idempotencyMaxKeys)
	defer idem.Close()

	mux := http.NewServeMux()
	api.New(rt.manager, api.Options{
		Feed:   rt.feed,
		Dedupe: idem,
		Logger: rt.logger,
	}).Register(mux)
	if rt.cfg.Metrics.Enabled {
		mux.Handle("GET "+rt.cfg.Metrics.Path, rt.recorder.Handler())
	}

	srv := &http.Server{
		Addr:              rt.cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams only end when their channel closes.
	srv.RegisterOnShutdown(rt.feed.Close)

	rt.logger.Info("starting llm-chat server",
		"config", rt.configPath,
		"http_addr", rt.cfg.Server.HTTPAddr,
		"sessions", len(rt.cfg.Sessions),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
