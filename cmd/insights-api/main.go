// @title Sales Insights API
// @version 1.0
// @description Upload a sales table, map its columns, filter it and download KPIs and exports.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-sales-insights/internal/api"
	"go-sales-insights/internal/api/handler"
	"go-sales-insights/internal/auth"
	"go-sales-insights/internal/config"
	"go-sales-insights/internal/session"
	"go-sales-insights/internal/store"
	"go-sales-insights/pkg/router"
	"go-sales-insights/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	log := cfg.NewLogger()

	// Init DB
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	sessions := session.NewManager(session.Options{
		DateThreshold: cfg.Report.DateThreshold,
		ProductLimit:  cfg.Report.ProductLimit,
		Summary:       cfg.Report.Summary(),
		Presets:       cfg.Presets,
		History:       db,
		Logger:        log,
	})

	h := &handler.Handler{
		Sessions: sessions,
		Auth:     auth.NewService(db, cfg.JWTSecret, cfg.TokenTTL),
		History:  db,
		Outputs:  utils.NewOutputManager(cfg.OutputDir),
		Log:      log,
	}

	// Create router and register API routes
	r := router.New(log)
	r.SetColor(cfg.LogFormat == "text")
	api.RegisterRoutes(r, h)

	srv := r.Server(cfg.Addr)
	go func() {
		log.WithField("addr", cfg.Addr).Infof("🚀 Server started on http://localhost%s (swagger at /swagger/index.html)", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
	log.Info("server stopped")
}
