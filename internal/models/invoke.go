package models

// InvokeEvent is the cloud-function style event: the analyze request travels
// as a JSON string in Body. A non-empty top-level Stage overrides the stage
// found inside the body.
type InvokeEvent struct {
	Body  string `json:"body"`
	Stage Stage  `json:"stage,omitempty"`
}

// InvokeResult is the cloud-function style response envelope.
type InvokeResult struct {
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers"`
}
