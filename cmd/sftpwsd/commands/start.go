package commands

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/sftpws/internal/channel"
	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/internal/safefs"
	"github.com/marmos91/sftpws/internal/sftpserver"
	"github.com/marmos91/sftpws/pkg/config"
	"github.com/marmos91/sftpws/pkg/metrics"

	// Import the prometheus collectors to register their init() constructors.
	_ "github.com/marmos91/sftpws/pkg/metrics/prometheus"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Serve one virtual root over wss://",
	Long: `Start the sftpwsd server, serving one virtual root over a
WebSocket-transported SFTPv3-derived protocol.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/sftpws/sftpws.yaml.

Examples:
  # Start with the default or discovered config
  sftpwsd start

  # Start with a custom config file
  sftpwsd start --config /etc/sftpws/sftpws.yaml

  # Override a setting via environment variable
  SFTPWS_LOGGING_LEVEL=DEBUG sftpwsd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.MustLoad(GetConfigFile())

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("sftpwsd starting",
		"virtual_root", cfg.Server.VirtualRoot,
		"listen_addr", cfg.Server.ListenAddr,
		"read_only", cfg.Server.ReadOnly,
		"config_source", getConfigSource(GetConfigFile()))

	var sessionMetrics metrics.SessionMetrics
	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		sessionMetrics = metrics.NewSessionMetrics()
		logger.Info("metrics enabled", "addr", cfg.Metrics.Addr)
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer metricsSrv.Close()
	} else {
		logger.Info("metrics disabled")
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handleUpgrade(w, r, cfg, sessionMetrics)
	})

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	serverDone := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		serverDone <- err
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		<-serverDone
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}

// handleUpgrade accepts one incoming connection, authenticates it against
// cfg.Server's Basic-auth pair (if configured), and binds a fresh
// safefs.FS-backed session to it (spec.md §3 Session: one FS instance per
// session).
func handleUpgrade(w http.ResponseWriter, r *http.Request, cfg *config.Config, sessionMetrics metrics.SessionMetrics) {
	ch, err := channel.Upgrade(w, r, cfg.Server.Realm, authenticator(cfg))
	if err != nil {
		logger.Warn("channel upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	fs, err := safefs.New(safefs.Config{
		VirtualRoot: cfg.Server.VirtualRoot,
		ReadOnly:    cfg.Server.ReadOnly,
		HideUIDGID:  cfg.Server.HideUIDGID,
	})
	if err != nil {
		logger.Error("failed to construct session filesystem", "error", err)
		_ = ch.Close(1011, "internal error")
		return
	}

	sftpserver.NewSession(ch, fs, sftpserver.WithMetrics(sessionMetrics))
	logger.Info("session opened", "remote", r.RemoteAddr)
}

// authenticator returns nil when no credentials are configured, matching
// spec.md §6's "authentication mechanics beyond conveying credentials" being
// out of scope for the protocol itself: checking a configured pair is
// this binary's policy, not the wire protocol's.
func authenticator(cfg *config.Config) func(authHeader string) bool {
	if cfg.Server.AuthUser == "" && cfg.Server.AuthPassword == "" {
		return nil
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Server.AuthUser+":"+cfg.Server.AuthPassword))
	return func(authHeader string) bool {
		if authHeader == "" || !strings.HasPrefix(authHeader, "Basic ") {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(authHeader), []byte(want)) == 1
	}
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
