package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/wsta/internal/adapters/web"
	"github.com/lcalzada-xor/wsta/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
)

// Server is the debug HTTP and WebSocket surface of the station.
type Server struct {
	Addr      string
	WSManager *web.WSManager

	StationHandler *handlers.StationHandler
	JournalHandler *handlers.JournalHandler
	APHandler      *handlers.APHandler
	srv            *http.Server
}

// NewServer creates a new web server. journal and ap may be nil; their
// routes are then not registered.
func NewServer(addr string, sta handlers.StationService, connector handlers.Connector, journal ports.EventJournal, ap handlers.AccessPoint) *Server {
	s := &Server{
		Addr: addr,
		WSManager: web.NewWSManager(func(ctx context.Context) (interface{}, error) {
			return sta.Snapshot(ctx)
		}),
		StationHandler: handlers.NewStationHandler(sta, connector),
	}
	if journal != nil {
		s.JournalHandler = handlers.NewJournalHandler(journal)
	}
	if ap != nil {
		s.APHandler = handlers.NewAPHandler(ap)
	}
	return s
}

// Publish forwards an MLME event to websocket clients. It matches the
// storage.Recorder listener signature.
func (s *Server) Publish(ev domain.Event) {
	s.WSManager.Publish(ev)
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	// "wsta-server" is the name of the operation (span)
	return otelhttp.NewHandler(SetupRoutes(s), "wsta-server")
}

// Run starts the server and the broadcaster.
func (s *Server) Run(ctx context.Context) error {
	s.WSManager.Start(ctx)

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown implementation
	go func() {
		<-ctx.Done()
		log.Println("[WEB] Web Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WEB] Web Server shutdown error: %v", err)
		}
	}()

	log.Printf("[WEB] Web server listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
