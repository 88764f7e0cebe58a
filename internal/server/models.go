package server

import "time"

// HTTPError is the unified JSON error body.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type QuestionRequest struct {
	Concept string `json:"concept"`
}

type EvaluateRequest struct {
	Concept        string   `json:"concept"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	ExpectedPoints []string `json:"expected_points"`
}

type NodeUpdateRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type BackfillRequest struct {
	Concepts   []string  `json:"concepts"`
	MasteredAt time.Time `json:"mastered_at"`
}

type BackfillResponse struct {
	Updated int64 `json:"updated"`
}
