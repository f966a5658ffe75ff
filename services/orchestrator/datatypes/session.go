package datatypes

// Turn roles as stored in the chat history and rendered into prompts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single utterance in a session. Turns are immutable once
// written; a round always appends a user turn followed by an assistant
// turn.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TurnProperties is the Weaviate object shape for one persisted exchange.
// A full round (user question + assistant answer) is stored as one object
// so the append is atomic: either the whole round is written or none of
// it is.
type TurnProperties struct {
	SessionId string `json:"session_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp int64  `json:"timestamp"`
}
