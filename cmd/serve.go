package cmd

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/parolam/breach-checker/config"
	"github.com/parolam/breach-checker/controllers"
	"github.com/parolam/breach-checker/services"
	"github.com/parolam/breach-checker/store"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lookup API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return serve(ctx, cfg)
		},
	}

	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "Address to listen on.")
	flags.String("port", "8080", "Port to listen on.")
	return serveCmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	s, err := store.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	rdb, err := store.ConnectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	cache := store.NewCache(rdb, cfg.CacheTTL)
	q := services.NewQueryService(s, cache)
	if cache != nil {
		pterm.Info.Println("stats refresh running in background ...")
		services.FetchStats(ctx, q, cfg.CacheTTL/2)
	}

	gin.SetMode(cfg.GinMode)
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           controllers.NewRouter(q),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pterm.Info.Println("listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		pterm.Info.Println("shutting down ...")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
