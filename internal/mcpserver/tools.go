package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/safety"
)

//nolint:gochecknoglobals // schema fragment.
var profileProperties = map[string]any{
	"age":             map[string]any{"type": "integer", "minimum": 0, "maximum": 120},
	"fitness_level":   map[string]any{"type": "string", "enum": []string{"beginner", "intermediate", "advanced", "elite"}},
	"training_goal":   map[string]any{"type": "string", "enum": []string{"cutting", "bulking", "balanced", "strength", "hypertrophy", "endurance"}},
	"height_cm":       map[string]any{"type": "number"},
	"weight_kg":       map[string]any{"type": "number"},
	"gender":          map[string]any{"type": "string"},
	"activity_level":  map[string]any{"type": "string"},
	"reported_injury": map[string]any{"type": "boolean"},
}

//nolint:gochecknoglobals // schema fragment.
var planProperties = map[string]any{
	"sessions_per_week": map[string]any{"type": "integer"},
	"session_minutes":   map[string]any{"type": "integer"},
	"exercises": map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []string{"name", "sets", "min_reps", "max_reps"},
			"properties": map[string]any{
				"exercise_id":        map[string]any{"type": "string"},
				"name":               map[string]any{"type": "string"},
				"sets":               map[string]any{"type": "integer"},
				"min_reps":           map[string]any{"type": "integer"},
				"max_reps":           map[string]any{"type": "integer"},
				"weight_kg":          map[string]any{"type": "number"},
				"baseline_weight_kg": map[string]any{"type": "number"},
				"target_rpe":         map[string]any{"type": "number"},
				"rest_seconds":       map[string]any{"type": "integer"},
				"notes":              map[string]any{"type": "string"},
			},
		},
	},
}

//nolint:gochecknoglobals // tool definition.
var toolResolveLimits = mcp.NewTool("resolve_limits",
	mcp.WithDescription("Resolve the safety limits for a user profile. Returns the allowed ranges for sessions, "+
		"minutes, sets, reps, weekly volume, RPE, rest and the largest weight step."),
	mcp.WithObject("profile", mcp.Required(), mcp.Description("The user profile"), mcp.Properties(profileProperties)),
)

//nolint:gochecknoglobals // tool definition.
var toolValidateWorkout = mcp.NewTool("validate_workout",
	mcp.WithDescription("Validate a workout plan against the limits of a profile. Returns the verdict (accepted, "+
		"clamped or rejected), the plan cleared for the user and every violation."),
	mcp.WithObject("profile", mcp.Required(), mcp.Description("The user profile"), mcp.Properties(profileProperties)),
	mcp.WithObject("plan", mcp.Required(), mcp.Description("The proposed plan"), mcp.Properties(planProperties)),
)

//nolint:gochecknoglobals // tool definition.
var toolAnalyzeProgression = mcp.NewTool("analyze_progression",
	mcp.WithDescription("Suggest the next session of an exercise from the user's logged history. Returns the "+
		"suggestion with its rationale and the validated plan."),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("User ID")),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise ID, e.g. back-squat")),
	mcp.WithObject("profile", mcp.Required(), mcp.Description("The user profile"), mcp.Properties(profileProperties)),
)

// decodeArgument decodes the object argument name into v, rejecting unknown fields.
func decodeArgument(req mcp.CallToolRequest, name string, v any) error {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return errors.New(name + " is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "marshal argument", slog.String("name", name))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err = dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid "+name)
	}
	return nil
}

func jsonResult(v any) *mcp.CallToolResult {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed")
	}
	return result
}

func (h *handlers) resolveLimits(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var profile safety.UserProfile
	if err := decodeArgument(req, "profile", &profile); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limits, violations := h.svc.ResolveLimits(profile)
	if len(violations) > 0 {
		result := jsonResult(map[string]any{"violations": violations})
		result.IsError = true
		return result, nil
	}
	return jsonResult(limits), nil
}

func (h *handlers) validateWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		profile safety.UserProfile
		plan    safety.WorkoutPlan
	)
	if err := decodeArgument(req, "profile", &profile); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := decodeArgument(req, "plan", &plan); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// Plans arriving over MCP are authored by the calling model.
	plan.Source = safety.SourceAI
	return jsonResult(h.svc.Validate(ctx, profile, plan)), nil
}

func (h *handlers) analyzeProgression(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id parameter is required"), nil
	}
	exerciseID, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	var profile safety.UserProfile
	if err = decodeArgument(req, "profile", &profile); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ev, err := h.svc.Progress(ctx, userID, exerciseID, profile)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelError, "mcp analyze_progression", errors.SlogError(err))
		return mcp.NewToolResultError("history is unavailable, try again later"), nil
	}
	return jsonResult(ev), nil
}
