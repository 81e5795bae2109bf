package web

// errors.go maps handler errors to stable codes and user-facing messages.
//
// Codes:
//
//	FEED001 - Unknown feed key                          404
//	ING001  - All ingest slots busy                     503 (Retry-After)
//	ING002  - A line exceeded INGEST_MAX_LINE_BYTES     413
//	ING003  - Run cancelled or timed out                504
//	REQ001  - Malformed request                         400
//	REQ002  - Request body exceeded INGEST_MAX_BODY_BYTES 413
//	INT001  - Anything else                             500
//
// The technical error is logged with the request ID; only the mapped message
// reaches the client.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/tickfeed/internal/logging"
	"github.com/JonMunkholm/tickfeed/internal/pipeline"
)

var (
	errUnknownFeed = errors.New("unknown feed")
	errBadRequest  = errors.New("bad request")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// UserMessage is the client-facing description of an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
	Status  int
}

type errorMapping struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

var errorMappings = []errorMapping{
	{
		match: is(errUnknownFeed),
		msg: UserMessage{
			Message: "Unknown feed",
			Action:  "List available feeds at /api/feeds",
			Code:    "FEED001",
			Status:  http.StatusNotFound,
		},
	},
	{
		match: is(pipeline.ErrTooManyRuns),
		msg: UserMessage{
			Message: "The server is busy with other ingest runs",
			Action:  "Retry in a minute",
			Code:    "ING001",
			Status:  http.StatusServiceUnavailable,
		},
	},
	{
		match: is(pipeline.ErrLineTooLong),
		msg: UserMessage{
			Message: "A line exceeds the maximum length",
			Action:  "Check that the file uses newline line endings",
			Code:    "ING002",
			Status:  http.StatusRequestEntityTooLarge,
		},
	},
	{
		match: func(err error) bool {
			return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
		},
		msg: UserMessage{
			Message: "The ingest run was cancelled or timed out",
			Action:  "Split the file into smaller parts",
			Code:    "ING003",
			Status:  http.StatusGatewayTimeout,
		},
	},
	{
		match: func(err error) bool {
			var tooLarge *http.MaxBytesError
			return errors.As(err, &tooLarge)
		},
		msg: UserMessage{
			Message: "Request body too large",
			Action:  "Split the file into smaller parts",
			Code:    "REQ002",
			Status:  http.StatusRequestEntityTooLarge,
		},
	},
	{
		match: is(errBadRequest),
		msg: UserMessage{
			Message: "Malformed request",
			Code:    "REQ001",
			Status:  http.StatusBadRequest,
		},
	},
}

var internalError = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again; quote the request ID if it persists",
	Code:    "INT001",
	Status:  http.StatusInternalServerError,
}

// MapError returns the user message for err.
func MapError(err error) UserMessage {
	for _, m := range errorMappings {
		if m.match(err) {
			return m.msg
		}
	}
	return internalError
}

// respondError logs err and writes its mapped JSON response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"code", msg.Code,
		"error", err.Error(),
	)

	if msg.Code == "ING001" {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, msg.Status, ErrorResponse{
		Error:  msg.Message,
		Action: msg.Action,
		Code:   msg.Code,
	})
}
