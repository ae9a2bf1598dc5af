package website

// Request is the payload for the chat endpoint. A missing session id starts
// a new session.
type Request struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
