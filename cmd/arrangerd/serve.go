package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/arrangerd/internal/analysis"
	"github.com/austinkregel/local-media/arrangerd/internal/audio"
	"github.com/austinkregel/local-media/arrangerd/internal/auth"
	"github.com/austinkregel/local-media/arrangerd/internal/config"
	"github.com/austinkregel/local-media/arrangerd/internal/ipc"
)

var socketPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the playback and analysis daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&socketPath, "socket", "", "IPC socket path (default: runtime dir)")
}

// defaultSocketPath prefers the user's runtime dir, falling back to a
// UID-scoped path in the temp dir
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "arrangerd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("arrangerd-%d.sock", os.Getuid()))
}

func serve(ctx context.Context) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configMgr := config.NewManager(configDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	authStore, err := auth.NewStore(filepath.Join(configDir, "clients.json"))
	if err != nil {
		return fmt.Errorf("failed to initialize auth store: %w", err)
	}
	authManager := auth.NewManager(authStore)

	output, err := audio.NewOtoOutputWithConfig(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.BufferSizeMs)
	if err != nil {
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}
	player := audio.NewPlayer(output, nil)
	defer player.Close()
	player.SetVolume(cfg.Audio.DefaultVolume)

	engine := analysis.NewEngine(cfg.Analysis.EngineConfig())

	path := socketPath
	if path == "" {
		path = cfg.SocketPath
	}
	if path == "" {
		path = defaultSocketPath()
	}

	server := ipc.NewServer(path, authManager, configMgr, player, engine)

	log.Printf("Starting IPC server on %s", path)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}
	return nil
}
