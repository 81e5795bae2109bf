package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tickfeed/internal/logging"
	"github.com/JonMunkholm/tickfeed/internal/pipeline"
	"github.com/JonMunkholm/tickfeed/internal/store"
)

type ingestResponse struct {
	RunID     uuid.UUID        `json:"runId"`
	Persisted bool             `json:"persisted"`
	Summary   pipeline.Summary `json:"summary"`
}

// handleIngest runs the request body through the feed's pipeline. Accepted
// fields are written to the store when one is configured.
//
// Query parameters:
//
//	symbols=AAPL,MSFT   accept only these symbols
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	def, err := lookupFeed(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	parser, err := def.NewParser()
	if err != nil {
		respondError(w, r, err)
		return
	}
	if q := r.URL.Query(); q.Has("symbols") {
		symbols := splitList(q.Get("symbols"))
		if len(symbols) == 0 {
			respondError(w, r, fmt.Errorf("%w: symbols must list at least one symbol", errBadRequest))
			return
		}
		parser.AddFilter(pipeline.SymbolFilter(symbols))
	}

	slot, err := s.limiter.Acquire(r.Context(), def.Info.Key)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer slot.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Ingest.Timeout)
	defer cancel()

	runID := uuid.New()
	logger := logging.WithFields(ctx, "run_id", runID)

	var sink *store.Sink
	if s.db != nil {
		sink = store.NewSink(s.db, runID, def.Info.Key)
		parser.AddListener(sink)
	}

	proc := pipeline.NewProcessor(parser, pipeline.Options{
		Feed:                 def.Info.Key,
		HeaderLines:          def.HeaderLines,
		ContextCheckInterval: s.cfg.Ingest.ContextCheckInterval,
		MaxLineBytes:         s.cfg.Ingest.MaxLineBytes,
		MaxFailedLines:       s.cfg.Ingest.MaxFailedLines,
		FlushEvery:           s.cfg.Ingest.FlushEvery,
		Logger:               logger,
		Metrics:              s.metrics,
	})

	started := time.Now()
	body := http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBodyBytes)
	summary, runErr := proc.Run(ctx, body)

	if sink != nil {
		// A failed run skips the processor's final flush.
		if sink.Pending() > 0 {
			if err := sink.Flush(context.WithoutCancel(ctx)); err != nil {
				logger.Error("failed to flush pending observations", "pending", sink.Pending(), "error", err)
			}
		}
		run := store.Run{
			ID:         runID,
			Feed:       def.Info.Key,
			Source:     "http:" + r.RemoteAddr,
			Lines:      summary.Lines,
			Accepted:   summary.Accepted,
			Invalid:    summary.Invalid,
			Rejected:   summary.Rejected,
			Stored:     sink.Written(),
			Err:        runErr,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		if err := store.InsertRun(context.WithoutCancel(ctx), s.db, run); err != nil {
			logger.Error("failed to record run", "error", err)
		}
	}

	if runErr != nil {
		respondError(w, r, runErr)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		RunID:     runID,
		Persisted: s.db != nil,
		Summary:   summary,
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Status())
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
