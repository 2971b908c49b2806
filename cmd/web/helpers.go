package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/safety"
	"github.com/myrjola/liftguard/internal/workout"
)

const (
	maxBodyBytes = 1 << 20
	maxIDLength  = 128
)

// errorResponse is the body of every error. Violations lists the offending fields of a 422.
type errorResponse struct {
	Error      string             `json:"error"`
	Violations []safety.Violation `json:"violations,omitempty"`
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "marshal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(append(data, '\n')); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "failed to write response", errors.SlogError(err))
	}
}

// writeEvaluation sends an evaluation. An evaluation that failed on broken limits is a server fault and is not
// shown to the user.
func (app *application) writeEvaluation(w http.ResponseWriter, r *http.Request, ev workout.Evaluation) {
	for _, v := range ev.Result.Violations {
		if v.LimitExceeded == safety.LimitContract {
			app.serverError(w, r, errors.New("evaluation failed on broken limits",
				slog.String("evaluation_id", ev.ID.String()), slog.String("message", v.Message)))
			return
		}
	}
	app.writeJSON(w, r, http.StatusOK, ev)
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	app.writeJSON(w, r, status, errorResponse{Error: msg, Violations: nil})
}

// invalidInput responds with 422 listing the field level violations.
func (app *application) invalidInput(w http.ResponseWriter, r *http.Request, violations []safety.Violation) {
	app.writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
		Error:      "the request contains invalid values",
		Violations: violations,
	})
}

// serverError logs err and hides it from the client.
func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
	app.clientError(w, r, http.StatusInternalServerError, "something went wrong, try again later")
}

// unavailable is used when a dependency such as the history store fails. The decision cannot be made safely
// without it.
func (app *application) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "dependency unavailable", errors.SlogError(err))
	app.clientError(w, r, http.StatusServiceUnavailable, "training history is unavailable, try again later")
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound, "not found")
}

// decodeJSON reads the request body into v. Unknown fields are an error so that misspelled limits are not silently
// ignored. On failure a 400 is sent and false returned.
func (app *application) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			app.clientError(w, r, http.StatusRequestEntityTooLarge, "request body is too large")
			return false
		}
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "invalid request body", errors.SlogError(err))
		app.clientError(w, r, http.StatusBadRequest, "request body is not valid JSON for this endpoint")
		return false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		app.clientError(w, r, http.StatusBadRequest, "request body must contain a single JSON object")
		return false
	}
	return true
}

// pathID reads an identifier path parameter. On failure a 404 is sent and false returned.
func (app *application) pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := r.PathValue(name)
	if id == "" || len(id) > maxIDLength {
		app.notFound(w, r)
		return "", false
	}
	return id, true
}

// queryLimit parses the optional limit query parameter. Zero means the default.
func (app *application) queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		app.clientError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
