// ABOUTME: HTTP server receiving provider webhook deliveries for backfill sessions.
// ABOUTME: Validates payloads against a JSON schema and feeds the chunk aggregator.
package webhook

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/teamfit/wearsync/internal/models"
	"github.com/teamfit/wearsync/internal/pipeline"
	"github.com/teamfit/wearsync/internal/storage"
)

//go:embed schema.json
var schemaFS embed.FS

// event is one provider webhook delivery. The provider announces a
// backfill ("large_request_processing"), then per category how many
// chunks to expect ("large_request_sending"), then the chunks
// themselves ("data").
type event struct {
	Event       string            `json:"event"`
	Reference   string            `json:"reference"`
	Category    string            `json:"category,omitempty"`
	TotalChunks *int              `json:"total_chunks,omitempty"`
	ChunkSeq    int               `json:"chunk_seq,omitempty"`
	Items       []json.RawMessage `json:"items,omitempty"`
}

// SessionResolver maps provider reference tokens to backfill sessions.
type SessionResolver interface {
	FindSyncSessionByReference(ref string) (*models.HistoricalSyncSession, error)
	ListOpenSyncSessions() ([]*models.HistoricalSyncSession, error)
}

// Server handles provider webhook deliveries and exposes backfill
// status.
type Server struct {
	aggregator *pipeline.Aggregator
	resolver   SessionResolver
	logger     *slog.Logger
	schema     *jsonschema.Schema
	mux        *http.ServeMux
}

// NewServer builds the webhook server. The embedded event schema is
// compiled once at startup.
func NewServer(aggregator *pipeline.Aggregator, resolver SessionResolver, logger *slog.Logger) (*Server, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	s := &Server{
		aggregator: aggregator,
		resolver:   resolver,
		logger:     logger,
		schema:     schema,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /backfills", s.handleBackfills)
	return s, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schema.json")
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("webhook server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 16<<20)
	doc, err := jsonschema.UnmarshalJSON(body)
	if err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := s.schema.Validate(doc); err != nil {
		s.logger.Warn("webhook payload failed validation", "error", err)
		http.Error(w, "payload does not match schema", http.StatusBadRequest)
		return
	}

	// Re-encode the validated document into the typed event. The
	// schema has already enforced field presence per event type.
	raw, err := json.Marshal(doc)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	session, err := s.resolver.FindSyncSessionByReference(ev.Reference)
	if err != nil {
		if errors.Is(err, storage.ErrSyncSessionNotFound) {
			// Unknown reference: acknowledge so the provider stops
			// retrying, but deliver nothing.
			s.logger.Warn("dropping webhook for unknown reference",
				"event", ev.Event, "reference", ev.Reference)
			w.WriteHeader(http.StatusOK)
			return
		}
		s.logger.Error("resolve webhook reference", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch ev.Event {
	case "large_request_processing":
		s.logger.Info("provider processing backfill request",
			"session_id", session.ID, "reference", ev.Reference)

	case "large_request_sending":
		err = s.aggregator.InitializeAggregation(r.Context(), session.ID,
			models.Category(ev.Category), *ev.TotalChunks)

	case "data":
		err = s.aggregator.ProcessChunk(r.Context(), session.ID,
			models.Category(ev.Category), ev.ChunkSeq, ev.Items)
	}
	if err != nil {
		s.logger.Error("webhook processing failed",
			"event", ev.Event, "session_id", session.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// backfillStatus is the wire form of one open session's progress.
type backfillStatus struct {
	SessionID string                    `json:"session_id"`
	AthleteID string                    `json:"athlete_id"`
	StartDate string                    `json:"start_date"`
	EndDate   string                    `json:"end_date"`
	Progress  map[string]categoryStatus `json:"progress"`
}

type categoryStatus struct {
	Reference *string `json:"reference,omitempty"`
	Expected  *int    `json:"expected,omitempty"`
	Received  int     `json:"received"`
	Done      bool    `json:"done"`
}

func (s *Server) handleBackfills(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.resolver.ListOpenSyncSessions()
	if err != nil {
		s.logger.Error("list open sessions", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	statuses := make([]backfillStatus, 0, len(sessions))
	for _, session := range sessions {
		st := backfillStatus{
			SessionID: session.ID,
			AthleteID: session.AthleteID.String(),
			StartDate: session.StartDate.Format(models.DateKey),
			EndDate:   session.EndDate.Format(models.DateKey),
			Progress:  make(map[string]categoryStatus, len(models.Categories)),
		}
		for _, c := range models.Categories {
			p := session.Progress[c]
			if p == nil {
				p = &models.CategoryProgress{}
			}
			st.Progress[string(c)] = categoryStatus{
				Reference: p.Reference,
				Expected:  p.Expected,
				Received:  p.Received,
				Done:      p.Done(),
			}
		}
		statuses = append(statuses, st)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}
