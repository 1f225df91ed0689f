/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package devserver serves the project during development and tells
// connected browsers to reload after a rebuild.
package devserver

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"bennypowers.dev/assetpipe/config"
	"bennypowers.dev/assetpipe/fs"
	"bennypowers.dev/assetpipe/internal/logging"
)

// Endpoints served next to the project files.
const (
	LiveReloadPath = "/__assetpipe/livereload"
	ScriptPath     = "/__assetpipe/livereload.js"
	MetricsPath    = "/__assetpipe/metrics"
)

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("devserver: not started")

// Options configures a Server.
type Options struct {
	// FS serves the files; nil means the OS filesystem.
	FS fs.FileSystem
	// Root is the served directory.
	Root string
	Host string
	// Port 0 picks a free port.
	Port int
	Log  *slog.Logger
}

// Server is a static file server with live reload. It owns its listener
// and must be stopped by its creator.
type Server struct {
	opts    Options
	log     *slog.Logger
	hub     *Hub
	metrics *metrics

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New creates a Server. Nothing listens until Start.
func New(opts Options) *Server {
	if opts.FS == nil {
		opts.FS = fs.NewOSFileSystem()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	log := logging.OrDiscard(opts.Log)
	m := newMetrics()
	return &Server{
		opts:    opts,
		log:     log,
		hub:     newHub(m, log),
		metrics: m,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(LiveReloadPath, s.hub)
	mux.HandleFunc(ScriptPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := fmt.Fprintf(w, clientScript, LiveReloadPath); err != nil {
			s.log.Debug("failed to write livereload script", "error", err)
		}
	})
	mux.Handle(MetricsPath, s.metrics.handler())

	files := http.FileServer(http.FS(dirFS{fsys: s.opts.FS, root: s.opts.Root}))
	tag := `<script src="` + ScriptPath + `"></script>`
	mux.Handle("/", noCache(injectLiveReload(files, tag)))
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("devserver: already started")
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("devserver: listen on %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("devserver stopped", "error", err)
		}
	}()
	s.log.Info("serving", "url", s.url(), "root", s.opts.Root)
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// URL returns the base URL, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url()
}

func (s *Server) url() string {
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// Stop disconnects live-reload clients and shuts the server down,
// waiting for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return ErrNotStarted
	}
	s.hub.Shutdown()
	return srv.Shutdown(ctx)
}

// Reload tells every connected browser that group was rebuilt and returns
// the build id sent with the message.
func (s *Server) Reload(group string) string {
	build := uuid.NewString()
	s.hub.Broadcast(Message{
		Type:  "reload",
		Group: group,
		Build: build,
		CSS:   group == config.Styles,
	})
	return build
}

// Rebuilt records a finished rebuild and reloads browsers when it
// succeeded.
func (s *Server) Rebuilt(group string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.rebuilds.WithLabelValues(group, result).Inc()
	s.metrics.rebuildSeconds.WithLabelValues(group).Observe(elapsed.Seconds())
	if err == nil {
		s.Reload(group)
	}
}

// Clients returns the number of connected live-reload clients.
func (s *Server) Clients() int {
	return s.hub.Clients()
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// dirFS exposes root of an fs.FileSystem as an io/fs.FS.
type dirFS struct {
	fsys fs.FileSystem
	root string
}

func (d dirFS) Open(name string) (iofs.File, error) {
	if !iofs.ValidPath(name) {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: iofs.ErrInvalid}
	}
	return d.fsys.Open(filepath.Join(d.root, filepath.FromSlash(name)))
}
