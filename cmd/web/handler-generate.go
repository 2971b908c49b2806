package main

import (
	"net/http"
)

// generatePOST asks the AI coach for a weekly plan. The fallback plan is returned when the coach is unavailable or
// its plan is unsafe.
func (app *application) generatePOST(w http.ResponseWriter, r *http.Request) {
	userID, ok := app.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req profileRequest
	if !app.decodeJSON(w, r, &req) {
		return
	}
	ev, err := app.service.GeneratePlan(r.Context(), userID, req.Profile)
	if err != nil {
		app.unavailable(w, r, err)
		return
	}
	app.writeEvaluation(w, r, ev)
}
