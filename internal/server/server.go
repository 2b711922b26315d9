// Package server implements the marketplace's primary surface: a persistent
// line-delimited text protocol over TCP, one session per connection, all
// sessions sharing the injected store.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

type Server struct {
	config  *config.Config
	logger  *slog.Logger
	store   *memory.Store
	mu      sync.Mutex
	ln      net.Listener
	wg      sync.WaitGroup
	closing atomic.Bool
}

func New(config *config.Config, logger *slog.Logger, store *memory.Store) *Server {
	return &Server{
		config: config,
		logger: logger,
		store:  store,
	}
}

// Start listens and accepts connections until Stop closes the listener.
// Each connection is served by its own goroutine; a session failure never
// reaches the accept loop.
func (s *Server) Start() error {
	const op = "server.Server.Start"

	addr := net.JoinHostPort(s.config.TCPHost, strconv.Itoa(s.config.TCPPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("Marketplace server listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) MustStart() {
	if err := s.Start(); err != nil {
		panic("Failed to start server: " + err.Error())
	}
}

// Addr reports the bound listen address, or "" before Start has bound one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes the listener and waits for active sessions to drain, bounded
// by ctx. In-flight store operations always run to completion; only the
// wait is cut short.
func (s *Server) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")

	s.closing.Store(true)
	s.mu.Lock()
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	sess := NewSession(s.store, s.logger)
	s.logger.Info("Client connected", slog.String("remote", remote))

	w := bufio.NewWriter(conn)
	fmt.Fprintln(w, Greeting)
	if err := w.Flush(); err != nil {
		return
	}

	sc := bufio.NewScanner(conn)
	for {
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}
		if !sc.Scan() {
			break
		}

		resp, quit := sess.Handle(sc.Text())
		if resp != "" {
			fmt.Fprintln(w, resp)
			if err := w.Flush(); err != nil {
				break
			}
		}
		if quit {
			break
		}
	}

	s.logger.Info("Client disconnected", slog.String("remote", remote))
}
