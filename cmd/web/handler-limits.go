package main

import (
	"net/http"

	"github.com/myrjola/liftguard/internal/safety"
)

type profileRequest struct {
	Profile safety.UserProfile `json:"profile"`
}

// limitsPOST resolves the safe training limits of a profile.
func (app *application) limitsPOST(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !app.decodeJSON(w, r, &req) {
		return
	}
	limits, violations := app.service.ResolveLimits(req.Profile)
	if len(violations) > 0 {
		app.invalidInput(w, r, violations)
		return
	}
	app.writeJSON(w, r, http.StatusOK, limits)
}
