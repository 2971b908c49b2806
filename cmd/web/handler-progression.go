package main

import (
	"net/http"
)

// progressionPOST suggests the next session of an exercise from the recorded history.
func (app *application) progressionPOST(w http.ResponseWriter, r *http.Request) {
	userID, ok := app.pathID(w, r, "userID")
	if !ok {
		return
	}
	exerciseID, ok := app.pathID(w, r, "exerciseID")
	if !ok {
		return
	}
	var req profileRequest
	if !app.decodeJSON(w, r, &req) {
		return
	}
	ev, err := app.service.Progress(r.Context(), userID, exerciseID, req.Profile)
	if err != nil {
		app.unavailable(w, r, err)
		return
	}
	app.writeEvaluation(w, r, ev)
}
