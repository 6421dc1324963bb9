package models

// ErrorResponse is the standard error payload returned by handlers.
type ErrorResponse struct {
	Error   string `json:"error" example:"Invalid session"`
	Details string `json:"details,omitempty" example:""`
}

// MessageResponse is the standard success payload for mutations.
type MessageResponse struct {
	Message string `json:"message" example:"Quote created successfully"`
	ID      int    `json:"id,omitempty" example:"1"`
}
