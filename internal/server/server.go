package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"gengate/internal/config"
	"gengate/internal/gateway"
	"gengate/internal/metrics"
	"gengate/internal/models"
)

const (
	serviceName = "gengate"

	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	// Must outlast the 120s upstream call timeout.
	writeTimeout = 150 * time.Second
	idleTimeout  = 120 * time.Second
)

type Server struct {
	cfg     config.Config
	gateway *gateway.Service
	metrics *metrics.Collector
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, svc *gateway.Service, collector *metrics.Collector) (*Server, error) {
	if svc == nil {
		return nil, errors.New("gateway service must not be nil")
	}
	if collector == nil {
		return nil, errors.New("metrics collector must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = detailErrorHandler
	e.Validator = &requestValidator{validate: newValidator()}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:     cfg,
		gateway: svc,
		metrics: collector,
		app:     e,
		address: cfg.Server.Address(),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.address, s.cfg.Metrics.Enabled)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleHealth)
	s.app.POST("/generate", s.handleGenerate)
	if s.cfg.Metrics.Enabled {
		s.app.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req models.GenerateRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if req.Tag != "" {
		slog.Debug("request tagged",
			"tag", req.Tag,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
	}

	start := time.Now()
	resp, route, err := s.gateway.Generate(c.Request().Context(), &req)
	s.metrics.RecordRequest(route.Name, route.Model, statusLabel(err), time.Since(start))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

type detailBody struct {
	Detail string `json:"detail"`
}

func writeDetail(c echo.Context, status int, detail string) error {
	return c.JSON(status, detailBody{Detail: detail})
}

func detailErrorHandler(err error, c echo.Context) {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeDetail(c, reqErr.Status, reqErr.Message)
		return
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		_ = writeDetail(c, echoErr.Code, fmt.Sprintf("%v", echoErr.Message))
		return
	}

	_ = writeDetail(c, http.StatusInternalServerError, err.Error())
}

// toHTTPError maps gateway failures onto response statuses. The schema guard
// is the one client error; everything else surfaces as a server error
// carrying the failure message.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, gateway.ErrSchemaRequired) {
		return requestError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	return requestError{Status: http.StatusInternalServerError, Message: err.Error()}
}

// newValidator returns a validator that reports JSON field names in error
// messages.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: validationMessage(err),
		}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func printStartupBanner(address string, metricsEnabled bool) {
	fmt.Println()
	fmt.Println("gengate ready")
	fmt.Printf("Listening on http://%s\n", address)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /")
	fmt.Println("  POST /generate")
	if metricsEnabled {
		fmt.Println("  GET  /metrics")
	}
	fmt.Printf("Example:\n  curl http://%s/generate -H 'Content-Type: application/json' -d '{\"model\":\"ollama:llama3\",\"prompt\":\"hello\"}'\n\n", address)
}
