package models

// Stage identifies which turn of the two-turn analysis protocol a request belongs to.
type Stage string

const (
	StageInitial  Stage = "initial"
	StageFollowUp Stage = "followUp"
)

// AnalyzeRequest is the body accepted by the analyze endpoint.
// All conversational state is carried by the client: Answer holds the
// instructions produced by the previous (initial) turn.
type AnalyzeRequest struct {
	Stage    Stage  `json:"stage,omitempty" msgpack:"stage,omitempty"`
	Answer   string `json:"answer,omitempty" msgpack:"answer,omitempty"`
	FilePath string `json:"file_path" msgpack:"file_path"`
	Question string `json:"question" msgpack:"question"`
}

// AnalyzeResponse is returned for every successful turn.
type AnalyzeResponse struct {
	Answer     string `json:"answer" msgpack:"answer"`
	FilePath   string `json:"file_path" msgpack:"file_path"`
	Question   string `json:"question" msgpack:"question"`
	Stage      Stage  `json:"stage" msgpack:"stage"`
	AnswerHTML string `json:"answer_html,omitempty" msgpack:"answer_html,omitempty"`
}

// StructuredAnswer is the output contract of the analysis capability.
type StructuredAnswer struct {
	Answer string `json:"answer"`
}

// AnalysisTask is what the router hands to the analysis capability.
type AnalysisTask struct {
	Prompt          string
	FilePath        string // resolved on-disk location
	FileDescription string
}

// ChainResult holds both turns of a server-side two-step run.
type ChainResult struct {
	Instructions *AnalyzeResponse `json:"instructions" msgpack:"instructions"`
	Final        *AnalyzeResponse `json:"final" msgpack:"final"`
}
