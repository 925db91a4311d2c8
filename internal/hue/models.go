package hue

// LightState is the live state block of a v1 light resource.
type LightState struct {
	On        bool `json:"on"`
	Reachable bool `json:"reachable"`
}

// Light represents a Hue light (v1 API). State is a pointer so a response
// missing the state object can be told apart from "off and unreachable".
type Light struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	State *LightState `json:"state"`
}

// StateUpdate is the body of a PUT /lights/{id}/state request.
type StateUpdate struct {
	On bool `json:"on"`
}
