package domain

// RunResult is the terminal record of one reasoning-loop run.
type RunResult struct {
	Thought     string    `json:"thought,omitempty"`
	Action      *ToolCall `json:"action,omitempty"`
	FinalAnswer string    `json:"final_answer,omitempty"`
	TokensUsed  int       `json:"tokens_used"`
	Iterations  int       `json:"iterations"`
	FailedTools []string  `json:"failed_tools,omitempty"`
}
