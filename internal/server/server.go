// Package server exposes the receipt and refund automation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gateway-agent/internal/config"
	"gateway-agent/internal/credentials"
	"gateway-agent/internal/log"
)

// MaxRefundAmount is the largest refund the gateway accepts in USD.
const MaxRefundAmount = 99999.99

// TaskRunner executes one browsing task and returns the model's final
// answer. It is satisfied by agent.BrowserAgent.
type TaskRunner interface {
	Browse(ctx context.Context, task string) (string, error)
}

// TransactionRequest asks for a receipt to be emailed.
type TransactionRequest struct {
	TransactionID string `json:"transactionId"`
	ClientEmail   string `json:"clientEmail"`
}

// RefundRequest asks for a refund to be issued.
type RefundRequest struct {
	TransactionID string  `json:"transactionId"`
	RefundAmount  float64 `json:"refundAmount"`
}

// StatusResponse reports backend and credential state.
type StatusResponse struct {
	Status               string `json:"status"`
	CredentialsConnected bool   `json:"credentials_connected"`
	Timestamp            string `json:"timestamp"`
}

// OperationResponse is the outcome of a receipt or refund run.
type OperationResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id,omitempty"`
	Result        string `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Server wires the HTTP API to the credential store, the verification
// session, and the task runner.
type Server struct {
	cfg     *config.Config
	creds   *credentials.Manager
	runner  TaskRunner
	session *VerificationSession
	mux     *http.ServeMux
}

// New builds the server and registers all routes.
func New(cfg *config.Config, creds *credentials.Manager, runner TaskRunner, session *VerificationSession) *Server {
	s := &Server{
		cfg:     cfg,
		creds:   creds,
		runner:  runner,
		session: session,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/credentials/connect", s.handleCredentialsConnect)
	s.mux.HandleFunc("POST /api/verification/start", s.handleVerificationStart)
	s.mux.HandleFunc("POST /api/verification/finish", s.handleVerificationFinish)
	s.mux.HandleFunc("POST /api/send_receipt", s.handleSendReceipt)
	s.mux.HandleFunc("POST /api/give_refund", s.handleGiveRefund)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)

	return s
}

// Handler returns the root handler with request tagging applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		log.Info("%s %s request_id=%s", r.Method, r.URL.Path, requestID)
		s.mux.ServeHTTP(w, r)
	})
}

// ListenAndServe runs the HTTP server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s", s.cfg.Listen.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.serveStatic(w, r, "index.html", "split-interface.html")
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.serveStatic(w, r, "dashboard.html", "dashboard.html")
}

// serveStatic serves the first of the static-dir file or the repo-root
// fallback that exists.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, name, fallback string) {
	candidates := []string{filepath.Join(s.cfg.Listen.StaticDir, name), fallback}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			http.ServeFile(w, r, path)
			return
		}
	}
	writeError(w, http.StatusNotFound, name+" not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:               "running",
		CredentialsConnected: s.creds.IsConnected(),
		Timestamp:            time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleCredentialsConnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.creds.Connect(); err != nil {
		log.Error("credential manager connection failed: %v", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "credential manager connection failed: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "credential store connected",
	})
}

func (s *Server) handleVerificationStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(r.Context()); err != nil {
		log.Error("failed to start verification session: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Verification session started. Use the VNC panel to complete the device check.",
		"profile_dir": s.cfg.Browser.ProfileDir,
	})
}

func (s *Server) handleVerificationFinish(w http.ResponseWriter, r *http.Request) {
	if !s.session.Finish(r.Context()) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "No active verification session. Nothing to do.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Verification finished. Updated cookies are saved in the persistent profile.",
	})
}

func (s *Server) handleSendReceipt(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	secret, err := s.creds.Get(s.cfg.Secrets.SecretID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	task := buildReceiptTask(s.cfg.Browser.GatewayURL, secret, req.TransactionID, req.ClientEmail)
	log.Info("processing receipt for transaction %s", req.TransactionID)

	result, err := s.runner.Browse(r.Context(), task)
	if err != nil {
		log.Error("error processing receipt: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info("successfully sent receipt to %s", req.ClientEmail)
	writeJSON(w, http.StatusOK, OperationResponse{
		Success:       true,
		Message:       "Receipt sent successfully to " + req.ClientEmail,
		TransactionID: req.TransactionID,
		Result:        result,
	})
}

func (s *Server) handleGiveRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	secret, err := s.creds.Get(s.cfg.Secrets.SecretID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	task := buildRefundTask(s.cfg.Browser.GatewayURL, secret, req.TransactionID, req.RefundAmount)
	log.Info("processing refund for transaction %s", req.TransactionID)

	result, err := s.runner.Browse(r.Context(), task)
	if err != nil {
		log.Error("error processing refund: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	message := "Refund for transaction: " + req.TransactionID + " successful"
	log.Info("%s", message)
	writeJSON(w, http.StatusOK, OperationResponse{
		Success:       true,
		Message:       message,
		TransactionID: req.TransactionID,
		Result:        result,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	data, err := os.ReadFile(s.cfg.Log.File)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"logs":    []string{"No log file found"},
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lines := strings.SplitAfter(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"logs":    lines,
	})
}

func (r *TransactionRequest) validate() error {
	if r.TransactionID == "" {
		return errors.New("transactionId must not be empty")
	}
	if _, err := mail.ParseAddress(r.ClientEmail); err != nil {
		return errors.New("clientEmail is not a valid email address")
	}
	return nil
}

func (r *RefundRequest) validate() error {
	if r.TransactionID == "" {
		return errors.New("transactionId must not be empty")
	}
	if r.RefundAmount <= 0 || r.RefundAmount > MaxRefundAmount {
		return errors.New("refundAmount must be greater than 0 and at most 99999.99")
	}
	return nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   detail,
	})
}
