// Package models holds the request and response bodies of the HTTP API.
package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Cameras int    `json:"cameras" example:"2" doc:"Configured cameras"`
	Online  int    `json:"online" example:"1" doc:"Cameras within their liveness window"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2026-01-27 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
	Driver    string `json:"driver" example:"v4l2" doc:"Active driver backend"`
}

type VersionResponse struct {
	Body VersionData
}

// MessageResponse acknowledges an action.
type MessageResponse struct {
	Body struct {
		Message string `json:"message" example:"streaming started" doc:"Operation result"`
	}
}

// NewMessage builds a MessageResponse.
func NewMessage(msg string) *MessageResponse {
	r := &MessageResponse{}
	r.Body.Message = msg
	return r
}
