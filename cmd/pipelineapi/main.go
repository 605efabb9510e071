// Command pipelineapi is the HTTP intake front door for the content
// pipeline: POST /v1/runs submits a URL, GET /v1/runs/{id} polls its
// terminal StepResult. Grounded on codeready-toolchain-tarsy's gin API
// server bootstrap (pkg/api + its cmd/server/main.go wiring).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/contentpipe/internal/bootstrap"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rt, err := bootstrap.Build("pipelineapi")
	if err != nil {
		return fmt.Errorf("bootstrapping runtime: %w", err)
	}
	defer rt.Close()

	srv := newServer(rt.Pipeline, rt.Logger)

	addr := os.Getenv("PIPELINEAPI_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{Addr: addr, Handler: srv.routes()}

	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Info("pipelineapi: listening", map[string]interface{}{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
