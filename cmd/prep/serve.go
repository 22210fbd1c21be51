package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/colegioprep/prepsync/internal/bridge"
	"github.com/colegioprep/prepsync/internal/engine"
	"github.com/colegioprep/prepsync/internal/importer"
	"github.com/colegioprep/prepsync/internal/remote"
	"github.com/colegioprep/prepsync/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and its local bridge",
	Long: `Run the sync engine: open the local cache, connect the remote
gateway, and serve the bridge API the editing UI talks to.

The drop-folder importer runs alongside it, so record files copied into
the import directory land in the cache while the engine is live. Shuts
down cleanly on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "bridge listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger("[prep] ")

	st, err := store.Open(viper.GetString("cache_path"))
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer st.Close()
	if err := st.InitSchema(); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	remoteURL := viper.GetString("remote_url")
	if remoteURL == "" {
		return fmt.Errorf("remote_url is not configured (set it in prepsync.yaml, PREPSYNC_REMOTE_URL, or --remote)")
	}
	gateway := remote.NewHTTPGateway(remoteURL, nil, newLogger("[remote] "))

	eng := engine.New(st, gateway, newLogger("[engine] "))

	addr := viper.GetString("listen_addr")
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		addr = v
	}
	srv := bridge.NewServer(eng, &bridge.Config{
		Addr:   addr,
		Logger: newLogger("[bridge] "),
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	importCfg := importer.DefaultConfig()
	importCfg.Logger = newLogger("[importer] ")
	im, err := importer.NewWithConfig(st, viper.GetString("import_dir"), importCfg)
	if err != nil {
		return fmt.Errorf("failed to create importer: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	importDone := make(chan error, 1)
	go func() {
		importDone <- im.Start(ctx)
	}()

	logger.Printf("Serving on %s (cache: %s)", srv.Addr(), viper.GetString("cache_path"))

	select {
	case <-ctx.Done():
		logger.Println("Shutting down")
	case err := <-importDone:
		if err != nil {
			logger.Printf("Importer failed: %v", err)
		}
		stop()
	}

	if err := srv.Stop(); err != nil {
		logger.Printf("Bridge shutdown error: %v", err)
	}
	if err := im.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Importer shutdown error: %v\n", err)
	}
	return nil
}
