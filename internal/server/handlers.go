package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/queue"
)

// envelopeSlack is the room allowed for JSON framing around the source.
const envelopeSlack = 4 << 10

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports a failure in the same shape as an execution result.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, executor.Response{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Rust Playground API is running"))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	maxSource := s.cfg.Execution.MaxSourceBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSource+envelopeSlack)

	var req executor.Request
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("source exceeds %d bytes", maxSource))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if int64(len(req.Code)) > maxSource {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("source exceeds %d bytes", maxSource))
		return
	}

	status, resp := s.execute(r, req)
	if resp == nil {
		return
	}
	writeJSON(w, status, resp)
}

// execute queues req and waits for its result. A nil response means the
// client went away and nothing should be written.
func (s *Server) execute(r *http.Request, req executor.Request) (int, *executor.Response) {
	job := queue.NewJob(r.Context(), req)
	if err := s.queue.Submit(job); err != nil {
		s.logger.Warn().Str("request_id", middleware.GetReqID(r.Context())).Msg("execution queue is full")
		return http.StatusServiceUnavailable, &executor.Response{Error: err.Error()}
	}

	result, err := job.Wait(r.Context())
	if err != nil {
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("job_id", job.ID).
			Err(err).
			Msg("client went away before the result was ready")
		return 0, nil
	}
	return result.Status(), &result.Response
}
