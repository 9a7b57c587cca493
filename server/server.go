// Package server exposes the HTTP and WebSocket request surface:
// prompt intake, job submission and inspection, and a live stream of
// job updates.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/promptctl/promptctl/config"
	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/logger"
	"github.com/promptctl/promptctl/pipeline"
)

// Server serves the request surface and owns the WebSocket client set.
type Server struct {
	cfg      config.ServerConfig
	pipeline *pipeline.Pipeline
	queue    *jobs.Queue

	httpServer *http.Server

	mu      sync.RWMutex
	clients map[*client]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server for the given pipeline and queue.
func New(cfg config.ServerConfig, pipe *pipeline.Pipeline, queue *jobs.Queue) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		pipeline: pipe,
		queue:    queue,
		clients:  make(map[*client]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.httpServer = &http.Server{Handler: s.routes()}
	return s
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/jobs", s.HandleJobs)
	mux.HandleFunc("/jobs/", s.HandleJob)
	mux.HandleFunc("/save", s.HandleSave)
	mux.HandleFunc("/optimize", s.HandleOptimize)
	mux.HandleFunc("/evaluate", s.HandleEvaluate)
	mux.HandleFunc("/chain", s.HandleChain)
	mux.HandleFunc("/agent", s.HandleAgent)
	mux.HandleFunc("/ws", s.HandleWebSocket)
	return mux
}

// Start binds the listen port and begins serving in the background.
// A bind failure is returned synchronously so the caller can treat it
// as fatal.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	s.startJobUpdateBroadcaster()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Errorw("HTTP server stopped unexpectedly", "error", err)
		}
	}()

	logger.Infow("Server listening", "addr", addr)
	return nil
}

// Shutdown stops accepting requests and closes WebSocket clients,
// honoring the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	err := s.httpServer.Shutdown(ctx)
	s.closeAllClients()
	s.wg.Wait()

	logger.Infow("Server stopped")
	return err
}

func (s *Server) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
}

// broadcastMessage sends a message to all connected clients. Clients
// whose send channel is full are skipped. Returns the number of
// clients that accepted the message.
func (s *Server) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		select {
		case c.sendMsg <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
}

// startJobUpdateBroadcaster subscribes to queue updates and forwards
// them to WebSocket clients.
func (s *Server) startJobUpdateBroadcaster() {
	jobChan := s.queue.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			// Unsubscribe first (removes from list), then close.
			// Order matters: closing while still subscribed could
			// panic on send.
			s.queue.Unsubscribe(jobChan)
			close(jobChan)
		}()

		for {
			select {
			case <-s.ctx.Done():
				logger.Debugw("Job update broadcaster stopping")
				return
			case job := <-jobChan:
				s.broadcastJobUpdate(job)
			}
		}
	}()
}

// broadcastJobUpdate sends a job snapshot to all connected clients.
func (s *Server) broadcastJobUpdate(job jobs.Job) {
	msg := jobUpdateMessage{
		Type: "job_update",
		Job:  job,
	}
	sent := s.broadcastMessage(msg)
	logger.Debugw("Broadcasted job update",
		"job_id", job.ID,
		"status", job.Status,
		"progress", job.Progress,
		"clients", sent,
	)
}

// jobUpdateMessage is the WebSocket frame carrying one job snapshot.
type jobUpdateMessage struct {
	Type string   `json:"type"`
	Job  jobs.Job `json:"job"`
}
