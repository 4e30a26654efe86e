package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"signvault/refresh"
	"signvault/server"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document portal web server",
	Long: `Start the web server. With a shared store configured, a background worker
drains the signature refresh queue, and AUTO_REFRESH_INTERVAL periodically queues
every downloaded document for a refresh.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		// Flag wins over PORT only when given explicitly.
		listenPort := a.cfg.Port
		if cmd.Flags().Changed("port") {
			listenPort = port
		}

		g, ctx := errgroup.WithContext(ctx)

		var sweeps server.Sweeps
		if a.queue != nil {
			worker := refresh.NewWorker(a.queue, a.resolver, a.signatures, a.logger)
			g.Go(func() error { return ignoreCancel(worker.Run(ctx)) })

			if interval := a.cfg.AutoRefreshInterval; interval > 0 {
				sweeper := refresh.NewSweeper(a.ledger, a.signatures, a.logger)
				sweeps = sweeper
				g.Go(func() error { return ignoreCancel(sweeper.Run(ctx, interval)) })
			}
		} else {
			a.logger.Info("No shared store configured, background refresh disabled")
		}

		srv := server.New(&server.Config{
			Catalog:             a.catalog,
			Archiver:            a.archiver,
			Refresher:           a.refresher,
			Signatures:          a.signatures,
			Sweeps:              sweeps,
			Logger:              a.logger,
			AutoRefreshInterval: a.cfg.AutoRefreshInterval,
			WriteTimeout:        a.cfg.ArchiveTimeout + time.Minute,
		})
		g.Go(func() error { return srv.ListenAndServe(ctx, listenPort) })

		return g.Wait()
	},
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on (overrides PORT)")
}
