package api

type ErrorResponse struct {
	Error string `json:"error" example:"booking is already cancelled"`
	// Code is the machine-readable error kind, e.g. invalid_state.
	Code string `json:"code,omitempty" example:"invalid_state"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}
