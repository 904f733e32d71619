package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/internal/config"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/gateway"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/resource"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/sequence"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and resource servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return fmt.Errorf("parsing --addr: %w", err)
				}
				p, err := strconv.Atoi(port)
				if err != nil {
					return fmt.Errorf("parsing --addr port: %w", err)
				}
				cfg.Gateway.Host = host
				cfg.Gateway.Port = p
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Gateway listen address, overrides the config file")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, tempStore, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}

	compiler := sequence.NewCompiler(store, sequence.Config{
		EnableTTS:         cfg.Sequence.EnableTTS,
		TTSMode:           cfg.Sequence.TTSMode,
		Voice:             cfg.Sequence.Voice,
		EnableAutoEmotion: *cfg.Sequence.EnableAutoEmotion,
		DisableStreaming:  !*cfg.Sequence.EnableStreaming,
		MinFlushRunes:     cfg.Sequence.MinFlushRunes,
		Logger:            logger,
	})

	input := sequence.NewInputConverter(tempStore, logger)

	gw := gateway.NewServer(&gateway.Config{
		Addr:           cfg.GatewayAddr(),
		Paths:          cfg.Gateway.Paths,
		Token:          cfg.Gateway.AuthToken,
		MaxConnections: cfg.Gateway.MaxConnections,
		KickOld:        *cfg.Gateway.KickOld,
		Logger:         logger,
	}, gateway.Options{
		Store:    store,
		Compiler: compiler,
		Input:    input,
		AckConfig: protocol.AckConfig{
			MaxInlineBytes:  cfg.Resource.MaxInlineBytes,
			ResourceBaseURL: cfg.ResourceBaseURL(),
		},
		CleanupInterval: cfg.Resource.CleanupInterval,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- gw.Start() }()

	var resourceSrv *resource.Server
	if *cfg.Resource.Enabled && store != nil {
		resourceSrv = resource.NewServer(store, resource.ServerConfig{
			Addr:   cfg.ResourceAddr(),
			Path:   cfg.Resource.Path,
			Token:  cfg.ResourceToken(),
			Logger: logger,
		})
		go func() { errCh <- resourceSrv.Start() }()
	}

	if tempStore != nil {
		go tempCleanupLoop(ctx, tempStore, cfg.Resource.CleanupInterval, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	if resourceSrv != nil {
		if err := resourceSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("resource server shutdown", "error", err)
		}
	}
	return nil
}

// buildStores creates the persistent resource store and the short-lived
// temp store. The resource store backs the S3 bucket when configured,
// the temp store always lives on local disk.
func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*resource.Store, *resource.Store, error) {
	if !*cfg.Resource.Enabled {
		return nil, nil, nil
	}

	var blob resource.Blob
	if cfg.S3.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("loading aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		blob = resource.NewS3Blob(client, cfg.S3.Bucket, cfg.S3.Prefix).
			WithURLExpiry(cfg.S3.URLExpiry)
	} else {
		disk, err := resource.NewDiskBlob(cfg.Resource.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening resource dir: %w", err)
		}
		blob = disk
	}

	store := resource.NewStore(blob, resource.Config{
		MaxTotalBytes:  cfg.Resource.MaxTotalBytes,
		MaxFiles:       cfg.Resource.MaxFiles,
		TTL:            cfg.Resource.TTL,
		MaxInlineBytes: cfg.Resource.MaxInlineBytes,
		BaseURL:        cfg.ResourceBaseURL(),
		Token:          cfg.ResourceToken(),
		Logger:         logger,
	})

	tempBlob, err := resource.NewDiskBlob(cfg.Temp.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening temp dir: %w", err)
	}
	tempStore := resource.NewStore(tempBlob, resource.Config{
		MaxTotalBytes:  cfg.Temp.MaxTotalBytes,
		MaxFiles:       cfg.Temp.MaxFiles,
		TTL:            cfg.Temp.TTL,
		MaxInlineBytes: cfg.Resource.MaxInlineBytes,
		Logger:         logger,
	})

	return store, tempStore, nil
}

// tempCleanupLoop ages out scratch files. The gateway's own cleanup
// task covers the main store only.
func tempCleanupLoop(ctx context.Context, store *resource.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := store.Cleanup(0, 0); err != nil {
				logger.Warn("temp cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
