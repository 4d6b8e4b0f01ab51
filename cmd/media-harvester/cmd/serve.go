package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-media-harvester/internal/extractor"
	"go-media-harvester/internal/render"
	"go-media-harvester/internal/server"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API over the download queue",
	Long: `Starts the download queue and serves the HTTP API for submitting downloads,
watching progress, resuming incomplete jobs, extracting media from pages and
searching completed artifacts.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Address to listen on (overrides config)")
	serveCmd.Flags().Bool("no-render", false, "Disable page extraction (no browser is started)")

	viper.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("serve.no_render", serveCmd.Flags().Lookup("no-render"))
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := globalConfig.ListenAddr
	if listen := viper.GetString("serve.listen"); listen != "" {
		addr = listen
	}

	st, err := openStack(globalConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Error("Error during shutdown")
		}
	}()

	opts := server.Options{
		Addr:      addr,
		Queue:     st.manager,
		Store:     st.store,
		Extractor: extractor.New(),
		Index:     st.index,
	}
	if !viper.GetBool("serve.no_render") {
		opts.Capturer = render.NewCapturer(globalConfig)
	}
	srv := server.New(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
