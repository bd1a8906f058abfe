// Package moonraker provides a Moonraker-compatible API server that
// post-processes uploaded G-code with the adaptive mesh filter.
// Slicers and web frontends that speak the Moonraker file API can
// upload to it directly.
package moonraker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"adaptive-mesh/pkg/adaptivemesh"
	"adaptive-mesh/pkg/history"
	"adaptive-mesh/pkg/log"
	"adaptive-mesh/pkg/metrics"
	"adaptive-mesh/pkg/postprocess"
)

// Version is reported by server.info.
const Version = "v0.3.0-adaptive-mesh"

// Server provides a Moonraker-compatible API server.
type Server struct {
	addr       string
	httpServer *http.Server

	// WebSocket management
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	files     *FileManager
	processor *postprocess.Processor
	history   history.Store
	metrics   *metrics.MeshMetrics
	logger    *log.Logger

	startTime time.Time
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":7125")
	Addr string

	// GCodesDir is the directory backing the "gcodes" root.
	GCodesDir string

	// History stores post-processing runs. Defaults to a memory store.
	History history.Store

	// Settings supplies the mesh offsets for uploads.
	Settings adaptivemesh.SettingsProvider

	Metrics *metrics.MeshMetrics
	Logger  *log.Logger
}

// New creates a server. The gcodes directory is created if missing.
func New(cfg Config) (*Server, error) {
	s := &Server{
		addr:      cfg.Addr,
		wsClients: make(map[int64]*WSClient),
		files:     NewFileManager(),
		history:   cfg.History,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		startTime: time.Now(),
	}
	if s.history == nil {
		s.history = history.NewMemoryStore()
	}
	if s.metrics == nil {
		s.metrics = metrics.GlobalMetrics()
	}
	if s.logger == nil {
		s.logger = log.GetLogger("moonraker")
	}
	if cfg.GCodesDir == "" {
		return nil, fmt.Errorf("moonraker: gcodes directory not configured")
	}
	if err := s.files.SetRoot(RootGCodes, cfg.GCodesDir); err != nil {
		return nil, err
	}

	s.processor = postprocess.New(postprocess.Options{
		Settings: cfg.Settings,
		Metrics:  s.metrics,
		History:  s.history,
		Logger:   s.logger.WithPrefix("postprocess"),
		Source:   history.SourceUpload,
	})

	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // frontends are served from other origins
		},
	}
	return s, nil
}

// FileManager returns the file manager.
func (s *Server) FileManager() *FileManager {
	return s.files
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	mux.HandleFunc("/websocket", s.handleWebSocket)

	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/server/adaptive_mesh/settings", s.handleSettings)
	mux.Handle("/metrics", s.metrics.Registry())

	mux.HandleFunc("/server/files/list", s.handleFileList)
	mux.HandleFunc("/server/files/metadata", s.handleMetadata)
	mux.HandleFunc("/server/files/upload", s.handleUpload)
	mux.HandleFunc("/server/files/", s.handleFile)
	// Moonraker's OctoPrint-compatible upload path used by slicers.
	mux.HandleFunc("/api/files/local", s.handleUpload)

	mux.HandleFunc("/server/history/list", s.handleHistoryList)
	mux.HandleFunc("/server/history/totals", s.handleHistoryTotals)
	mux.HandleFunc("/server/history/job", s.handleHistoryJob)

	return s.corsMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening on %s, gcodes in %s", s.addr, s.files.roots[RootGCodes])
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests over HTTP.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: -32700, Message: "Parse error"},
		})
		return
	}

	s.writeJSON(w, s.call(r.Context(), req, nil))
}

// call dispatches a request and wraps the outcome in a response.
func (s *Server) call(ctx context.Context, req jsonRPCRequest, client *WSClient) jsonRPCResponse {
	result, err := s.dispatchMethod(ctx, req.Method, req.Params, client)
	if err != nil {
		code := -32000
		if errors.Is(err, errMethodNotFound) {
			code = -32601
		}
		return jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: code, Message: err.Error()},
			ID:      req.ID,
		}
	}
	return jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
}

var errMethodNotFound = errors.New("method not found")

// dispatchMethod routes a method call to the appropriate handler.
func (s *Server) dispatchMethod(ctx context.Context, method string, params map[string]any, client *WSClient) (any, error) {
	switch method {
	case "server.info":
		return s.methodServerInfo()
	case "server.connection.identify":
		return s.methodIdentify(params, client)
	case "server.files.list":
		root, _ := params["root"].(string)
		if root == "" {
			root = RootGCodes
		}
		return s.files.ListFiles(root)
	case "server.files.metadata":
		filename, _ := params["filename"].(string)
		if filename == "" {
			return nil, fmt.Errorf("missing 'filename' parameter")
		}
		return s.files.GetFileMetadata(RootGCodes, filename)
	case "server.history.list":
		return s.listRuns(ctx, parseListOptions(func(key string) string {
			return paramString(params, key)
		}))
	case "server.history.get_job":
		uid := paramString(params, "uid")
		if uid == "" {
			return nil, fmt.Errorf("missing 'uid' parameter")
		}
		run, err := s.history.Get(ctx, uid)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": run}, nil
	case "server.history.totals":
		return s.historyTotals(ctx)
	case "server.adaptive_mesh.settings":
		return s.methodSettings()
	default:
		return nil, fmt.Errorf("%w: %s", errMethodNotFound, method)
	}
}

// paramString returns a parameter as a string; JSON numbers are
// formatted without a fraction.
func paramString(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// Method implementations

func (s *Server) methodServerInfo() (any, error) {
	hostname, _ := os.Hostname()

	s.wsClientMu.RLock()
	wsCount := len(s.wsClients)
	s.wsClientMu.RUnlock()

	return map[string]any{
		"components": []string{
			"file_manager",
			"history",
			"adaptive_mesh",
			"metrics",
		},
		"failed_components":      []string{},
		"registered_directories": s.files.Roots(),
		"warnings":               []string{},
		"websocket_count":        wsCount,
		"moonraker_version":      Version,
		"api_version":            []int{1, 5, 0},
		"api_version_string":     "1.5.0",
		"hostname":               hostname,
		"uptime":                 time.Since(s.startTime).Seconds(),
	}, nil
}

func (s *Server) methodIdentify(params map[string]any, client *WSClient) (any, error) {
	if client == nil {
		return nil, fmt.Errorf("identify requires a websocket connection")
	}
	clientName := paramString(params, "client_name")
	if clientName == "" {
		clientName = "unknown"
	}
	s.logger.WithField("client", client.id).Info("websocket client identified as %s", clientName)
	return map[string]any{"connection_id": client.id}, nil
}

func (s *Server) methodSettings() (any, error) {
	result := map[string]any{"definition": adaptivemesh.Definition()}
	off, err := s.processor.Offsets()
	if err != nil {
		result["error"] = err.Error()
	}
	result["values"] = map[string]int{
		adaptivemesh.SettingXOffset: off.X,
		adaptivemesh.SettingYOffset: off.Y,
	}
	return result, nil
}

// REST endpoint handlers

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodServerInfo()
	if err != nil {
		s.writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodSettings()
	if err != nil {
		s.writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

// CORS middleware to allow cross-origin requests from web frontends
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Debug("failed to write response")
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": err.Error(),
		},
	})
	s.logger.WithField("status", status).Warn("request failed: %v", err)
}
