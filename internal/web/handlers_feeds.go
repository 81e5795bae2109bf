package web

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tickfeed/internal/core"
	"github.com/JonMunkholm/tickfeed/internal/pipeline"
)

// maxDecodeLines caps the records returned by one decode request.
const maxDecodeLines = 10000

type feedResponse struct {
	core.FeedInfo
	HeaderLines int `json:"headerLines"`
}

func toFeedResponse(def core.FeedDefinition) feedResponse {
	return feedResponse{FeedInfo: def.Info, HeaderLines: def.HeaderLines}
}

// handleListFeeds returns every registered feed, or one group's feeds when
// ?group= is given.
func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	var defs []core.FeedDefinition
	if group := r.URL.Query().Get("group"); group != "" {
		defs = core.ByGroup(group)
		if len(defs) == 0 {
			respondError(w, r, fmt.Errorf("%w: unknown group %q", errBadRequest, group))
			return
		}
	} else {
		defs = core.All()
	}

	feeds := make([]feedResponse, 0, len(defs))
	for _, def := range defs {
		feeds = append(feeds, toFeedResponse(def))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feeds":  feeds,
		"groups": core.Groups(),
	})
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	def, err := lookupFeed(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedResponse(def))
}

func lookupFeed(r *http.Request) (core.FeedDefinition, error) {
	key := chi.URLParam(r, "feedKey")
	def, ok := core.Get(key)
	if !ok {
		return core.FeedDefinition{}, fmt.Errorf("%w: %q", errUnknownFeed, key)
	}
	return def, nil
}

type decodedRecord struct {
	Line          int                    `json:"line"`
	Text          string                 `json:"text"`
	Valid         bool                   `json:"valid"`
	Symbol        string                 `json:"symbol,omitempty"`
	Timestamp     *time.Time             `json:"timestamp,omitempty"`
	Fields        map[core.Field]float64 `json:"fields,omitempty"`
	FailedColumns []int                  `json:"failedColumns,omitempty"`
}

type decodeResponse struct {
	Feed      string          `json:"feed"`
	Records   []decodedRecord `json:"records"`
	Valid     int             `json:"valid"`
	Invalid   int             `json:"invalid"`
	Truncated bool            `json:"truncated,omitempty"`
}

// handleDecode decodes the request body line by line and returns every
// record without running filters or notifying anyone. Header and blank
// lines are skipped.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
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

	body := http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBodyBytes)
	sc := pipeline.NewLineScanner(body, s.cfg.Ingest.MaxLineBytes)

	resp := decodeResponse{Feed: def.Info.Key, Records: []decodedRecord{}}
	for lineNum := 1; sc.Scan(); lineNum++ {
		text := strings.TrimRight(sc.Text(), "\r")
		if lineNum <= def.HeaderLines || strings.TrimSpace(text) == "" {
			continue
		}
		if len(resp.Records) == maxDecodeLines {
			resp.Truncated = true
			break
		}

		rec := parser.Decode(text)
		resp.Records = append(resp.Records, toDecodedRecord(lineNum, rec))
		if rec.Valid() {
			resp.Valid++
		} else {
			resp.Invalid++
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			err = fmt.Errorf("%w: %w", pipeline.ErrLineTooLong, err)
		}
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func toDecodedRecord(lineNum int, rec *core.Record) decodedRecord {
	out := decodedRecord{
		Line:          lineNum,
		Text:          rec.Line(),
		Valid:         rec.Valid(),
		FailedColumns: rec.FailedColumns(),
	}
	out.Symbol, _ = rec.Symbol(0)
	if ts, ok := rec.Timestamp(); ok {
		out.Timestamp = &ts
	}
	if fields := rec.Fields(); len(fields) > 0 {
		out.Fields = fields
	}
	return out
}
