package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fusion/pkg/middleware"
	"github.com/Ramsey-B/fusion/pkg/routes/deadletters"
	"github.com/Ramsey-B/fusion/pkg/routes/fusionaccount"
	"github.com/Ramsey-B/fusion/pkg/routes/fusionsource"
	"github.com/Ramsey-B/fusion/pkg/routes/reviews"
)

type server struct {
	echo *echo.Echo
	http *http.Server
}

func newServer(a *app) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")

	fusionsource.Register(api.Group("/fusion-sources"),
		fusionsource.NewHandler(a.logger, a.fusionSources, a.scheduler, a.reconciler))

	accounts := fusionaccount.NewHandler(a.logger, a.fusionAccounts, a.fusionSources, a.scheduler, a.reconciler)
	if a.projector != nil {
		accounts = accounts.WithLinks(a.projector)
	}
	fusionaccount.Register(api.Group("/fusion-accounts"), accounts)

	reviews.Register(api.Group("/reviews"), reviews.NewHandler(a.logger, a.reviews))
	deadletters.Register(api.Group("/dead-letters"), deadletters.NewHandler(a.logger, a.deadLetters))

	return &server{
		echo: e,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Port),
			ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
			MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
		},
	}
}

func (s *server) start() error {
	if err := s.echo.StartServer(s.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
