package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	host   string
	port   int
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimitMB  int
}

// NewServer creates the Fiber app with voterd's standard middleware.
func NewServer(cfg *ServerConfig, logger zerolog.Logger) *Server {
	bodyLimit := cfg.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 512
	}

	app := fiber.New(fiber.Config{
		AppName:               "voterd",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             bodyLimit * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(requestLogger(logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return &Server{
		app:    app,
		logger: logger.With().Str("component", "api-server").Logger(),
		host:   cfg.Host,
		port:   cfg.Port,
	}
}

// App exposes the Fiber app for route registration.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts serving. Blocks until Shutdown.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// requestLogger logs each request at debug level.
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("Request")
		return err
	}
}
