// Package server exposes the generation pipeline over HTTP: one streaming
// NDJSON endpoint per run plus a cancel endpoint, bridging orchestrator
// progress into the wire protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/logoforge-dev/logoforge"
	"github.com/logoforge-dev/logoforge/agent"
	"github.com/logoforge-dev/logoforge/internal/orchestrator"
	"github.com/logoforge-dev/logoforge/internal/plan"
	"github.com/logoforge-dev/logoforge/pkg/security"
	"github.com/logoforge-dev/logoforge/stream"
)

// Server serves the generation API.
type Server struct {
	gen        *logoforge.Generator
	httpServer *http.Server

	mu   sync.Mutex
	runs map[string]*orchestrator.Orchestrator
}

// New creates a server around a generator.
func New(gen *logoforge.Generator) *Server {
	return &Server{gen: gen, runs: make(map[string]*orchestrator.Orchestrator)}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/runs/{session}/cancel", s.handleCancel)
	return mux
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// No WriteTimeout: generation streams outlive any fixed deadline.
	}
	log.Printf("[Server] Listening on :%d", port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleGenerate runs one generation, streaming progress as NDJSON.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var brief agent.Brief
	if err := json.NewDecoder(r.Body).Decode(&brief); err != nil {
		http.Error(w, fmt.Sprintf("invalid brief: %v", err), http.StatusBadRequest)
		return
	}
	if err := security.ValidateBrief(brief); err != nil {
		http.Error(w, fmt.Sprintf("invalid brief: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	// Identical briefs are served straight from the cache, no pipeline run.
	if entry, ok := s.gen.CachedResult(r.Context(), brief); ok {
		sw := stream.NewWriter(w, entry.SessionID)
		_ = sw.Send(&stream.Cache{Cached: true, Source: "full", Message: "served from cache"})
		_ = sw.Send(&stream.Result{Result: entry.Result})
		_ = sw.Send(&stream.End{Status: stream.EndSuccess})
		return
	}

	sw, run, err := s.startRun(w, brief)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer s.forget(run.SessionID())

	hbCtx, hbCancel := context.WithCancel(r.Context())
	defer hbCancel()
	go sw.Heartbeats(hbCtx, s.gen.Config().Server.HeartbeatInterval())

	res := s.gen.Run(r.Context(), run, brief)

	switch {
	case res.Success:
		if err := sw.SendResult(logoforge.ViewOf(res), runMetrics(res)); err != nil {
			log.Printf("[Server] Session %s: failed to write result: %v", res.SessionID, err)
		}
	case aborted(res):
		_ = sw.Send(&stream.Error{Message: firstError(res), Code: "aborted"})
		_ = sw.Send(&stream.End{Status: stream.EndCancelled})
	default:
		_ = sw.SendError(firstError(res), "generation_failed", false)
	}
}

// startRun builds the per-run orchestrator with hooks wired to the stream and
// announces the run.
func (s *Server) startRun(w http.ResponseWriter, brief agent.Brief) (*stream.Writer, *orchestrator.Orchestrator, error) {
	// The writer needs the session ID before the orchestrator exists, and the
	// hooks need the writer; resolve the loop with a late-bound pointer.
	var sw *stream.Writer
	start := time.Now()

	hooks := logoforge.Hooks{
		OnProgress: func(ev orchestrator.ProgressEvent) {
			elapsed := time.Since(start).Milliseconds()
			_ = sw.Send(&stream.Progress{
				CurrentStage:    ev.Stage,
				StageProgress:   ev.Progress,
				OverallProgress: ev.OverallProgress,
				StatusMessage:   progressMessage(ev),
				ElapsedTime:     &elapsed,
			})
		},
		OnStageDone: func(done orchestrator.StageDone) {
			msg := &stream.StageComplete{
				Stage: stream.CompletedStage{
					ID:       done.Stage.ID,
					Name:     done.Stage.Name,
					Duration: done.Duration.Milliseconds(),
					Success:  done.Success,
				},
			}
			if done.Next != nil {
				msg.NextStage = &stream.StageInfo{
					ID:                done.Next.ID,
					Name:              done.Next.Name,
					EstimatedDuration: done.Next.EstimatedDuration,
				}
			}
			_ = sw.Send(msg)
		},
	}

	run, err := s.gen.NewRun(brief, hooks)
	if err != nil {
		return nil, nil, err
	}
	sw = stream.NewWriter(w, run.SessionID())

	s.mu.Lock()
	s.runs[run.SessionID()] = run
	s.mu.Unlock()

	_ = sw.Send(startMessage(run.Plan()))
	return sw, run, nil
}

// handleCancel aborts a running generation by session ID.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")

	s.mu.Lock()
	run, ok := s.runs[session]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	run.Abort("cancelled by client")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"session": session, "status": "cancelling"})
}

func (s *Server) forget(session string) {
	s.mu.Lock()
	delete(s.runs, session)
	s.mu.Unlock()
}

// startMessage announces the plan's stages and total estimate.
func startMessage(p *plan.Plan) *stream.Start {
	msg := &stream.Start{}
	for _, st := range p.Stages {
		msg.EstimatedTime += st.EstimatedDuration
		msg.Stages = append(msg.Stages, stream.StageInfo{
			ID:                st.ID,
			Name:              st.Name,
			EstimatedDuration: st.EstimatedDuration,
		})
	}
	return msg
}

func progressMessage(ev orchestrator.ProgressEvent) string {
	switch ev.Status {
	case orchestrator.StatusCompleted:
		return fmt.Sprintf("%s finished", ev.StageName)
	case orchestrator.StatusFailed:
		return fmt.Sprintf("%s hit a problem", ev.StageName)
	default:
		return ev.StageName
	}
}

func runMetrics(res *orchestrator.Result) *stream.RunMetrics {
	m := &stream.RunMetrics{
		TotalTime:  res.Duration.Milliseconds(),
		TokensUsed: res.Metrics.TokenUsage.Total,
	}
	return m
}

func aborted(res *orchestrator.Result) bool {
	for _, e := range res.Errors {
		if errors.Is(e, orchestrator.ErrAborted) {
			return true
		}
	}
	return false
}

func firstError(res *orchestrator.Result) string {
	if len(res.Errors) == 0 {
		return "generation failed"
	}
	return res.Errors[0].Error()
}
