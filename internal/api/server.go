// Package api hosts the dashboard's HTTP and gRPC listeners and provides the
// LimitUp gRPC service and client.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"limitboard/internal/config"
)

// Server hosts the HTTP handler and, when a gRPC port is configured, the
// LimitUp gRPC service.
type Server struct {
	cfg     config.Server
	http    *http.Server
	grpc    *grpc.Server
	log     *slog.Logger
	httpLis net.Listener
	grpcLis net.Listener
}

// NewServer creates a Server. svc may be nil to serve HTTP only.
func NewServer(cfg config.Server, handler http.Handler, svc *Service, log *slog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
	if svc != nil && cfg.GRPCPort != 0 {
		s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
		svc.RegisterGRPC(s.grpc)
	}
	return s
}

// Listen binds the configured addresses. ListenAndServe calls it when it
// has not been called yet.
func (s *Server) Listen() error {
	var err error
	if s.httpLis == nil {
		if s.httpLis, err = net.Listen("tcp", s.cfg.Addr()); err != nil {
			return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
		}
	}
	if s.grpc != nil && s.grpcLis == nil {
		if s.grpcLis, err = net.Listen("tcp", s.cfg.GRPCAddr()); err != nil {
			s.httpLis.Close()
			return fmt.Errorf("listening on %s: %w", s.cfg.GRPCAddr(), err)
		}
	}
	return nil
}

// HTTPAddr returns the bound HTTP address, or "" before Listen.
func (s *Server) HTTPAddr() string {
	if s.httpLis == nil {
		return ""
	}
	return s.httpLis.Addr().String()
}

// ListenAndServe serves HTTP and gRPC until ctx is cancelled, then shuts
// both down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http server listening", "addr", s.httpLis.Addr().String())
		if err := s.http.Serve(s.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if s.grpc != nil {
		g.Go(func() error {
			s.log.Info("grpc server listening", "addr", s.grpcLis.Addr().String())
			if err := s.grpc.Serve(s.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting connections and waits for in-flight requests.
// gRPC is force-stopped if it does not drain before ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down servers")
	if s.grpc != nil {
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
