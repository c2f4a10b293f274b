package requests

// CreateFlowRequest creates an empty flow.
type CreateFlowRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Category    string `json:"category"`
}

// CommandRequest is one natural-language editing instruction.
type CommandRequest struct {
	Text string `json:"text" binding:"required"`
}

type TranslateRequest struct {
	TargetLanguage string `json:"target_language" binding:"required"`
	Preview        bool   `json:"preview"`
}

type SpeechRequest struct {
	Voice string `json:"voice"`
}
