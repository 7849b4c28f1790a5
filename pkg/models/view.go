package models

import "fmt"

// ViewKind tags the variant held by a ViewState.
type ViewKind int

const (
	ViewHome ViewKind = iota
	ViewModelDetails
	ViewResponse
)

func (k ViewKind) String() string {
	switch k {
	case ViewHome:
		return "home"
	case ViewModelDetails:
		return "model"
	case ViewResponse:
		return "response"
	default:
		return fmt.Sprintf("view(%d)", int(k))
	}
}

// ViewState identifies what the viewer is displaying. It is a comparable
// value: two ViewStates are the same view exactly when they are ==.
// Fields that do not belong to Kind are always empty.
type ViewState struct {
	Kind       ViewKind `json:"kind"`
	ModelName  string   `json:"model_name,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
	QuestionID string   `json:"question_id,omitempty"`
	// Version pins a specific response version. Only valid for ViewResponse.
	Version string `json:"version,omitempty"`
}

// Home returns the leaderboard view.
func Home() ViewState {
	return ViewState{Kind: ViewHome}
}

// ModelDetails returns the per-model view for one run.
func ModelDetails(modelName, runID string) ViewState {
	return ViewState{Kind: ViewModelDetails, ModelName: modelName, RunID: runID}
}

// ResponseView returns the single-question view.
func ResponseView(modelName, questionID, runID string) ViewState {
	return ViewState{Kind: ViewResponse, ModelName: modelName, QuestionID: questionID, RunID: runID}
}

// WithVersion returns a copy of a response view pinned to version.
// Other variants are returned unchanged.
func (v ViewState) WithVersion(version string) ViewState {
	if v.Kind != ViewResponse {
		return v
	}
	v.Version = version
	return v
}

// CacheKey returns the composite key the view resolves through.
// Home carries no key.
func (v ViewState) CacheKey() (CacheKey, bool) {
	if v.Kind == ViewHome {
		return CacheKey{}, false
	}
	return CacheKey{RunID: v.RunID, ModelName: v.ModelName}, true
}

// SameQuestion reports whether v displays the given question of key.
func (v ViewState) SameQuestion(key CacheKey, questionID string) bool {
	return v.Kind == ViewResponse && v.RunID == key.RunID && v.ModelName == key.ModelName && v.QuestionID == questionID
}

func (v ViewState) String() string {
	switch v.Kind {
	case ViewHome:
		return "home"
	case ViewModelDetails:
		return fmt.Sprintf("model %s @ %s", v.ModelName, v.RunID)
	case ViewResponse:
		s := fmt.Sprintf("response %s/%s @ %s", v.ModelName, v.QuestionID, v.RunID)
		if v.Version != "" {
			s += " v" + v.Version
		}
		return s
	default:
		return v.Kind.String()
	}
}
