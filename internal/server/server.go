// Package server accepts Wyoming clients over TCP and runs one session per
// connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Address     string
	ReadTimeout time.Duration
}

type Server struct {
	cfg      Config
	opts     session.Options
	synth    session.Synthesizer
	recorder session.Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
	active   atomic.Int64

	accepted metric.Int64Counter
	sessions metric.Int64UpDownCounter
}

func New(cfg Config, opts session.Options, synth session.Synthesizer, recorder session.Recorder, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		opts:     opts,
		synth:    synth,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "server")),
		conns:    make(map[string]net.Conn),
	}
	meter := otel.Meter("github.com/loqalabs/loqa-tts/server")
	var err error
	if s.accepted, err = meter.Int64Counter("loqa.tts.connections", metric.WithDescription("Accepted client connections")); err != nil {
		s.logger.Warn("failed to create metric", slog.String("error", err.Error()))
	}
	if s.sessions, err = meter.Int64UpDownCounter("loqa.tts.sessions.active", metric.WithDescription("Open client sessions")); err != nil {
		s.logger.Warn("failed to create metric", slog.String("error", err.Error()))
	}
	return s
}

// Listen binds the configured address. Serve calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}
	s.listener = ln
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveSessions reports the number of connected clients.
func (s *Server) ActiveSessions() int64 { return s.active.Load() }

// Serve accepts connections until ctx is cancelled, then closes the listener
// and every open connection and waits for their sessions to end.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	s.logger.Info("listening", slog.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		s.closeConns()
		return nil
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					time.Sleep(50 * time.Millisecond)
					continue
				}
				return fmt.Errorf("accept: %w", err)
			}
			g.Go(func() error {
				s.handleConn(gctx, conn)
				return nil
			})
		}
	})
	return g.Wait()
}

// Close stops listening and drops every open connection. Serve does the
// same when its context ends.
func (s *Server) Close() {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.closeConns()
}

func (s *Server) track(id string, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	logger := s.logger.With(slog.String("session_id", id), slog.String("remote", conn.RemoteAddr().String()))
	defer conn.Close()

	if !s.track(id, conn) {
		return
	}
	defer s.untrack(id)

	s.active.Add(1)
	defer s.active.Add(-1)
	if s.accepted != nil {
		s.accepted.Add(ctx, 1)
	}
	if s.sessions != nil {
		s.sessions.Add(ctx, 1)
		defer s.sessions.Add(context.WithoutCancel(ctx), -1)
	}

	logger.Debug("client connected")

	writer := protocol.NewWriter(conn)
	sink := session.SinkFunc(func(ev protocol.Outbound) error {
		return writer.WriteEvent(ev.Event())
	})
	sess := session.New(id, s.opts, s.synth, sink, s.recorder, logger)
	defer sess.Close(context.WithoutCancel(ctx))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection handler panic", slog.Any("panic", r))
		}
	}()

	reader := protocol.NewReader(conn)
	reader.OnHeader = func(line []byte) {
		logger.Debug("raw header received", slog.String("header", string(line)))
	}

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		ev, err := reader.ReadEvent()
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				if err := sess.Fault(ctx, err); err != nil {
					logger.Debug("client gone", slog.String("error", err.Error()))
					return
				}
				continue
			}
			logger.Debug("client disconnected", slog.String("error", err.Error()))
			return
		}

		in, err := protocol.Parse(ev)
		if err != nil {
			if err := sess.Fault(ctx, err); err != nil {
				logger.Debug("client gone", slog.String("error", err.Error()))
				return
			}
			continue
		}
		if err := sess.Handle(ctx, in); err != nil {
			logger.Debug("session ended", slog.String("error", err.Error()))
			return
		}
	}
}
