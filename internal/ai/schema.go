package ai

import (
	"fmt"
)

// planJSONSchema is the strict response format requested from the model. Every property is required because strict
// structured outputs do not allow optional keys, optional values are nullable instead.
type planJSONSchema struct {
	maxExercises int
}

func (s planJSONSchema) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{
		  "type": "object",
		  "required": ["sessions_per_week", "session_minutes", "exercises"],
		  "properties": {
			"sessions_per_week": {
			  "type": "integer",
			  "description": "Training sessions per week"
			},
			"session_minutes": {
			  "type": "integer",
			  "description": "Planned length of one session in minutes"
			},
			"exercises": {
			  "type": "array",
			  "description": "Exercises of one session in the order they are performed",
			  "maxItems": %d,
			  "items": {
				"type": "object",
				"required": ["name", "sets", "reps_min", "reps_max", "weight_kg", "target_rpe", "rest_seconds", "notes"],
				"properties": {
				  "name": {"type": "string", "description": "Common name of the exercise"},
				  "sets": {"type": "integer", "description": "Working sets"},
				  "reps_min": {"type": "integer", "description": "Lower end of the rep range"},
				  "reps_max": {"type": "integer", "description": "Upper end of the rep range"},
				  "weight_kg": {
					"type": ["number", "null"],
					"description": "Load in kilograms, null for bodyweight exercises or when unknown"
				  },
				  "target_rpe": {
					"type": ["number", "null"],
					"description": "Target rate of perceived exertion on the 1 to 10 scale"
				  },
				  "rest_seconds": {"type": "integer", "description": "Rest between sets in seconds"},
				  "notes": {"type": "string", "description": "Short coaching cue, may be empty"}
				},
				"additionalProperties": false
			  }
			}
		  },
		  "additionalProperties": false
		}`, s.maxExercises)), nil
}
