package api

import "medialink-client-go/internal/domain/session/model"

// Wire shapes of the fixed server contract. The server owns this contract;
// the engine only consumes it.

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	User  model.UserProfile `json:"user"`
	Token string            `json:"token"`
}

type PairRequestResponse struct {
	DeviceCode string `json:"device_code"`
	UserCode   string `json:"user_code"`
	ExpiresIn  int    `json:"expires_in"`
	Interval   int    `json:"interval"`
}

type PairPollRequest struct {
	DeviceCode string `json:"device_code"`
}

// Poll statuses the server may report.
const (
	PairStatusPending    = "pending"
	PairStatusAuthorized = "authorized"
	PairStatusExpired    = "expired"
	PairStatusDenied     = "denied"
)

type PairPollResponse struct {
	Status       string `json:"status"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ErrorResponse is the error envelope the server returns on 4xx/5xx.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Message extracts a human-readable error message from a failed response
// body, falling back to the raw body.
func (r Response) Message() string {
	var envelope ErrorResponse
	if err := r.Decode(&envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	if len(r.Body) > 0 {
		return string(r.Body)
	}
	return "request failed"
}
