package api

import (
	"context"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/websocket"
	"github.com/netwatcherio/netwatcher-diag/workers"
	"github.com/netwatcherio/netwatcher-diag/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server exposes the dispatcher over HTTP and websocket.
type Server struct {
	Addr    string
	Version string

	app        *iris.Application
	dispatcher *workers.Dispatcher
}

func NewServer(addr, version string, d *workers.Dispatcher) *Server {
	s := &Server{
		Addr:       addr,
		Version:    version,
		dispatcher: d,
	}

	app := iris.New()
	app.Logger().Install(log.StandardLogger())
	app.UseRouter(requestLogger)

	app.Get("/healthz", s.health)
	app.Get("/metrics", iris.FromStd(promhttp.Handler()))
	app.Get("/ws", websocket.Handler(ws.New(d)))

	network := app.Party("/api/network")
	network.Get("/interfaces", s.interfaces)
	network.Get("/test", s.interfaceSummary)
	network.Get("/test-speed", s.speedTest)
	network.Get("/test-speed/{interfaceName}", s.speedTest)
	network.Get("/analyze-url", s.analyzeURL)
	network.Get("/info", s.networkInfo)

	s.app = app
	return s
}

// Handler builds the router and returns it for use outside Start.
func (s *Server) Handler() (*iris.Application, error) {
	if err := s.app.Build(); err != nil {
		return nil, err
	}
	return s.app, nil
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	log.Infof("listening on %s", s.Addr)
	return s.app.Listen(s.Addr,
		iris.WithoutStartupLog,
		iris.WithoutServerError(iris.ErrServerClosed),
	)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func requestLogger(ctx iris.Context) {
	start := time.Now()
	ctx.Next()
	log.WithFields(log.Fields{
		"method":   ctx.Method(),
		"path":     ctx.Path(),
		"status":   ctx.GetStatusCode(),
		"duration": time.Since(start),
		"remote":   ctx.RemoteAddr(),
	}).Debug("request")
}
