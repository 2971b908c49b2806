package main

import (
	"net/http"

	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/workout"
)

// sessionsPOST records a performed exercise session.
func (app *application) sessionsPOST(w http.ResponseWriter, r *http.Request) {
	userID, ok := app.pathID(w, r, "userID")
	if !ok {
		return
	}
	var session progression.ExerciseSession
	if !app.decodeJSON(w, r, &session) {
		return
	}
	if err := app.service.RecordSession(r.Context(), userID, session); err != nil {
		var inputErr *workout.InputError
		if errors.As(err, &inputErr) {
			app.invalidInput(w, r, inputErr.Violations)
			return
		}
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, map[string]string{"status": "recorded"})
}

// historyGET lists the latest sessions of an exercise, oldest first.
func (app *application) historyGET(w http.ResponseWriter, r *http.Request) {
	userID, ok := app.pathID(w, r, "userID")
	if !ok {
		return
	}
	exerciseID, ok := app.pathID(w, r, "exerciseID")
	if !ok {
		return
	}
	limit, ok := app.queryLimit(w, r)
	if !ok {
		return
	}
	history, err := app.service.History(r.Context(), userID, exerciseID, limit)
	if err != nil {
		app.unavailable(w, r, err)
		return
	}
	if history.Sessions == nil {
		history.Sessions = []progression.ExerciseSession{}
	}
	app.writeJSON(w, r, http.StatusOK, history)
}
