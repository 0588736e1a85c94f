package model

// Tool describes either a tool made available to the model (with Parameters)
// or a tool call emitted by the model (with Arguments).
type Tool struct {
	Id       string   `json:"id,omitempty"`
	Type     string   `json:"type,omitempty"`
	Index    *int     `json:"index,omitempty"` // set on streaming tool call deltas
	Function Function `json:"function"`
}

type Function struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
	Arguments   string `json:"arguments,omitempty"`
}
