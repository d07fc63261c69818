package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jmcleod/visica/api"
	"github.com/jmcleod/visica/internal/util"
	"github.com/jmcleod/visica/records"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the record store server",
	Long: `Serves the accounts collection under /api/v1.

Without --tls-cert/--tls-key the server speaks plain HTTP unless
--self-signed is given. Passphrases travel in every request, so plain HTTP
should only ever face localhost or a TLS-terminating proxy.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.IntP("port", "p", 8080, "Port to listen on")
	f.String("tls-cert", "", "Path to TLS certificate file")
	f.String("tls-key", "", "Path to TLS key file")
	f.Bool("self-signed", false, "Serve TLS with a runtime generated self-signed certificate")
	f.Bool("query-credential", true, "Accept the passphrase as a query parameter on lookups")
	f.String("audit-webhook-url", "", "POST audit events to this URL")
	f.String("audit-webhook-header", "", `Header sent with audit webhooks, as "Name: value"`)
	f.Bool("runtime-metrics", true, "Add Go runtime and process collectors to /api/v1/metrics")
	addStoreFlags(f)
}

func serverTLSConfig() (*tls.Config, error) {
	certFile, keyFile := cfg.String("tls-cert"), cfg.String("tls-key")
	switch {
	case certFile != "" && keyFile != "":
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	case certFile != "" || keyFile != "":
		return nil, errors.New("--tls-cert and --tls-key must be given together")
	case cfg.Bool("self-signed"):
		cert, err := util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	}
	return nil, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	repo, location, err := openRepository(cmd.Context())
	if err != nil {
		return err
	}
	defer repo.Close()

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithQueryCredential(cfg.Bool("query-credential")),
	}
	if url := cfg.String("audit-webhook-url"); url != "" {
		opts = append(opts, api.WithAuditWebhook(url, cfg.String("audit-webhook-header")))
	}
	reg := prometheus.NewRegistry()
	if cfg.Bool("runtime-metrics") {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	opts = append(opts, api.WithRegistry(reg))
	a := api.New(records.NewService(repo), opts...)
	defer a.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Mount("/api/v1", a.Router())

	tlsConfig, err := serverTLSConfig()
	if err != nil {
		return err
	}

	port := cfg.Int("port")
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(out)
	scheme := "https"
	if tlsConfig == nil {
		scheme = "http"
		logger.Warn("serving without TLS; passphrases are sent in clear text")
	}
	fmt.Fprintf(out, "Starting server on %s://localhost:%d/api/v1 (store: %s)...\n", scheme, port, location)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}
