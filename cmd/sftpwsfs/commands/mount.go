package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/sftpws/internal/channel"
	"github.com/marmos91/sftpws/internal/fsadapter"
	"github.com/marmos91/sftpws/internal/fsadapter/tracker"
	"github.com/marmos91/sftpws/internal/fusebridge"
	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/pkg/config"
	"github.com/marmos91/sftpws/pkg/metrics"

	// Import the prometheus collectors to register their init() constructors.
	_ "github.com/marmos91/sftpws/pkg/metrics/prometheus"
)

var mountDebug bool

var mountCmd = &cobra.Command{
	Use:   "mount [server-url] [mountpoint]",
	Short: "Attach the adapter to a kernel mountpoint",
	Long: `Mount dials sftpwsd's WebSocket endpoint, wraps the resulting
cached filesystem adapter in the external FUSE bridge, and attaches it to
a local kernel mountpoint.

Either argument may be omitted if its counterpart is set in the config
file (client.server_url / client.mount_point).

Examples:
  # Mount using values from the config file
  sftpwsfs mount

  # Mount a specific server to a specific mountpoint
  sftpwsfs mount wss://example.com/sftp /mnt/remote`,
	Args: cobra.MaximumNArgs(2),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().BoolVar(&mountDebug, "debug", false, "Enable verbose FUSE debug logging")
}

func runMount(cmd *cobra.Command, args []string) error {
	cfg := config.MustLoad(GetConfigFile())

	serverURL := cfg.Client.ServerURL
	mountPoint := cfg.Client.MountPoint
	if len(args) >= 1 && args[0] != "" {
		serverURL = args[0]
	}
	if len(args) >= 2 && args[1] != "" {
		mountPoint = args[1]
	}
	if serverURL == "" {
		return fmt.Errorf("server URL required: pass it as an argument or set client.server_url in the config")
	}
	if mountPoint == "" {
		return fmt.Errorf("mountpoint required: pass it as an argument or set client.mount_point in the config")
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authHeader := basicAuthHeader(cfg.Client.AuthUser, cfg.Client.AuthPassword)
	dial := func(dialCtx context.Context) (channel.Channel, error) {
		return channel.Dial(dialCtx, serverURL, authHeader)
	}

	var cacheMetrics metrics.CacheMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		cacheMetrics = metrics.NewCacheMetrics()
		logger.Info("metrics enabled", "addr", cfg.Metrics.Addr)
	}

	adapterCfg := fsadapter.Config{
		CacheTimeout:     cfg.Client.CacheTimeout,
		CacheStatTimeout: cfg.Client.CacheStatTimeout,
		CacheDirTimeout:  cfg.Client.CacheDirTimeout,
		CacheLinkTimeout: cfg.Client.CacheLinkTimeout,
		Reconnect:        cfg.Client.Reconnect == nil || *cfg.Client.Reconnect,
		HidePath:         cfg.Client.HidePath,
		MetadataFile:     cfg.Client.MetadataFile,
		IOChunkSize:      int(cfg.Client.IOChunkSize.Uint64()),
		Metrics:          cacheMetrics,
	}
	if cfg.Client.ReadTracking.Path != "" {
		adapterCfg.Tracker = &tracker.Config{
			Path:              cfg.Client.ReadTracking.Path,
			TTL:               cfg.Client.ReadTracking.Timeout,
			FlushInterval:     cfg.Client.ReadTracking.Update,
			ModifiedThreshold: cfg.Client.ReadTracking.Modified,
		}
	}

	adapter := fsadapter.New(dial, adapterCfg)
	adapter.Start(ctx)
	defer adapter.End()

	logger.Info("mounting", "server_url", serverURL, "mount_point", mountPoint)
	srv, err := fusebridge.Mount(adapter, mountPoint, mountDebug)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	serveDone := make(chan struct{})
	go func() {
		srv.Serve()
		close(serveDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("filesystem mounted, press Ctrl+C to unmount")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("unmount signal received")
		if err := srv.Unmount(); err != nil {
			logger.Error("unmount error", "error", err)
			return err
		}
		<-serveDone
	case <-serveDone:
		logger.Info("mount was torn down externally")
	}

	return nil
}

// basicAuthHeader builds an Authorization header value from a username
// and password, or "" if neither is set (spec.md §6 Authentication: the
// engine conveys credentials but does not itself decide whether they are
// required).
func basicAuthHeader(user, password string) string {
	if user == "" && password == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
