package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/mdlayher/vsock"
	"go.uber.org/zap"

	"github.com/cloudx-io/batchclear/core"
)

const readTimeout = 30 * time.Second

// Server exposes the clearing engine to the host routing layer over a
// one-request-per-connection JSON protocol. The client writes a single JSON
// request and half-closes; the server replies with a single JSON response.
type Server struct {
	house      *core.AuctionHouse
	signer     ReportSigner
	log        *zap.Logger
	listen     string // "vsock:<port>" or "tcp:<addr>"
	maxWorkers int
}

func NewServer(house *core.AuctionHouse, signer ReportSigner, log *zap.Logger, listen string, maxWorkers int) *Server {
	return &Server{
		house:      house,
		signer:     signer,
		log:        log,
		listen:     listen,
		maxWorkers: maxWorkers,
	}
}

func (s *Server) listener() (net.Listener, error) {
	network, addr, ok := strings.Cut(s.listen, ":")
	if !ok {
		return nil, fmt.Errorf("malformed listen address %q", s.listen)
	}
	switch network {
	case "vsock":
		var port uint32
		if _, err := fmt.Sscanf(addr, "%d", &port); err != nil {
			return nil, fmt.Errorf("malformed vsock port %q: %w", addr, err)
		}
		return vsock.Listen(port, nil)
	case "tcp":
		return net.Listen("tcp", addr)
	default:
		return nil, fmt.Errorf("unsupported listen network %q", network)
	}
}

func (s *Server) Start() error {
	listener, err := s.listener()
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			s.log.Error("failed to close listener", zap.Error(err))
		}
	}()

	s.log.Info("clearing daemon listening",
		zap.String("listen", s.listen),
		zap.Int("max_workers", s.maxWorkers))

	// Bounded worker pool with immediate rejection when full.
	semaphore := make(chan struct{}, s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.log.Error("failed to accept connection", zap.Error(err))
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			s.log.Warn("no workers available, rejecting connection")
			if err := conn.Close(); err != nil {
				s.log.Error("failed to close rejected connection", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic recovered in connection handler", zap.Any("panic", r))
		}
		if err := conn.Close(); err != nil {
			s.log.Error("failed to close connection", zap.Error(err))
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		s.log.Error("failed to read request", zap.Error(err))
		return
	}

	response := s.handleRequest(buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}
