package http

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Telemetry string `json:"telemetry,omitempty"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Env      string `json:"env"`
	Phase    string `json:"phase"`
	Progress int    `json:"progress"`
	Current  int    `json:"current"`
	Total    int    `json:"total"`
}
