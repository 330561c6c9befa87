package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
	metricsvc "github.com/trezcool/masomo-credits/services/metrics"
)

type Server struct {
	conf     *core.Config
	app      *echo.Echo
	shutdown chan os.Signal
	errors   chan error
}

// NewServer builds the API: every dependency must be set, metrics included.
func NewServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	metrics *metricsvc.CreditMetrics,
	creditSvc credit.Service,
) *Server {
	s := &Server{
		conf:     conf,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware(metrics))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(logger, translator, s.SignalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home(conf))
	s.app.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerCreditAPI(v1, jwt, creditSvc, validate)
	return s
}

// Start serves until Shutdown/Close; a listener failure is sent on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // a shutdown is already pending
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(conf *core.Config) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+conf.AppName+" credits API!")
	}
}
