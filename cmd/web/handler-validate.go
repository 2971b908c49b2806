package main

import (
	"net/http"

	"github.com/myrjola/liftguard/internal/safety"
)

type validateRequest struct {
	Profile safety.UserProfile `json:"profile"`
	Plan    safety.WorkoutPlan `json:"plan"`
}

// validatePOST checks a caller supplied plan. The response is always an evaluation, a rejected verdict included.
func (app *application) validatePOST(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !app.decodeJSON(w, r, &req) {
		return
	}
	app.writeEvaluation(w, r, app.service.Validate(r.Context(), req.Profile, req.Plan))
}
