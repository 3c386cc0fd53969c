package api

import "github.com/gmsas95/medtwin/internal/model"

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ScoreResponse is the aggregate health score
type ScoreResponse struct {
	OverallHealth int    `json:"overall_health"`
	Status        string `json:"status"`
}

// TreatmentResponse is returned by apply and revert
type TreatmentResponse struct {
	Treatment     model.Treatment `json:"treatment"`
	OverallHealth int             `json:"overall_health"`
	Status        string          `json:"status"`
}

// AdviceRequest carries an optional per-request credential
type AdviceRequest struct {
	APIKey string `json:"api_key"`
}

// WSMessage is pushed to WebSocket clients
type WSMessage struct {
	Type  string          `json:"type"`
	Data  *model.Snapshot `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// WSCommand is sent by WebSocket clients
type WSCommand struct {
	Action string `json:"action"`
	ID     int    `json:"id,omitempty"`
}
