package cmd

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/jmcleod/visica/gateway"
	"github.com/jmcleod/visica/issuer"
	"github.com/jmcleod/visica/remote"
	"github.com/jmcleod/visica/session"
)

const defaultServer = "http://localhost:8080/api/v1"

func addClientFlags(fs *pflag.FlagSet) {
	fs.String("server", defaultServer, "Base URL of the record store (env VISICA_SERVER)")
	fs.String("issuer", "local", "Passphrase source: local or http")
	fs.String("issuer-url", issuer.DefaultURL, "Passphrase generator endpoint for --issuer http")
	fs.Bool("send-query-credential", false, "Send the passphrase as a query parameter on lookups")
	fs.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (self-signed servers)")
	fs.Duration("timeout", 30*time.Second, "Per-request timeout")
}

func newHTTPClient() *http.Client {
	c := &http.Client{Timeout: cfg.Duration("timeout")}
	if cfg.Bool("insecure-skip-verify") {
		c.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, //nolint:gosec // opt-in for self-signed dev servers
		}
	}
	return c
}

func newIssuer() (issuer.Issuer, error) {
	switch name := cfg.String("issuer"); name {
	case "local", "":
		return issuer.NewLocalIssuer(), nil
	case "http":
		return issuer.NewHTTPIssuer(cfg.String("issuer-url"), issuer.WithHTTPClient(&http.Client{Timeout: cfg.Duration("timeout")})), nil
	default:
		return nil, fmt.Errorf("unknown issuer %q", name)
	}
}

// openSession wires the remote store, issuer and durable slot into a
// session manager. The returned func releases the slot.
func openSession() (*session.Manager, func(), error) {
	opts := []remote.Option{remote.WithHTTPClient(newHTTPClient())}
	if cfg.Bool("send-query-credential") {
		opts = append(opts, remote.WithQueryCredential())
	}
	store, err := remote.New(cfg.String("server"), opts...)
	if err != nil {
		return nil, nil, err
	}
	iss, err := newIssuer()
	if err != nil {
		return nil, nil, err
	}

	dir, err := dataDir()
	if err != nil {
		return nil, nil, err
	}
	slot, err := session.OpenBoltSlot(filepath.Join(dir, "session.db"))
	if err != nil {
		return nil, nil, err
	}

	gw := gateway.New(store, iss, gateway.WithLogger(logger))
	m := session.NewManager(gw, slot, session.WithLogger(logger))
	return m, func() { slot.Close() }, nil
}
