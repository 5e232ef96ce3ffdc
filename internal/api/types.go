package api

import "shapelearner/internal/knn"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RecomputeAcknowledgement is the body returned by a successful recompute.
const RecomputeAcknowledgement = "Model has been recomputed."

// CreateJobResponse carries the id of a new job.
type CreateJobResponse struct {
	JobID int64 `json:"jobID"`
}

// UpdateJobRequest overwrites every mutable field of a job.
type UpdateJobRequest struct {
	JobID          FlexInt `json:"jobID"`
	JobStatus      string  `json:"jobStatus"`
	PartID         FlexInt `json:"partID"`
	PartName       string  `json:"partName"`
	ServerIP       string  `json:"serverIP"`
	ServerPort     FlexInt `json:"serverPort"`
	Message        string  `json:"message"`
	ExpectedStatus string  `json:"expectedStatus,omitempty"`
}

// UpdateJobResponse echoes the updated job id.
type UpdateJobResponse struct {
	JobID int64 `json:"jobID"`
}

// JobStatusRequest names the job to read.
type JobStatusRequest struct {
	IDJob FlexInt `json:"idJob"`
}

// JobStatus is the transport representation of a job.
type JobStatus struct {
	IDJob      int64  `json:"idJob"`
	JobStatus  string `json:"jobStatus"`
	PartID     int64  `json:"partID"`
	PartName   string `json:"partName"`
	ServerIP   string `json:"serverIP"`
	ServerPort int    `json:"serverPort"`
	Message    string `json:"message"`
	UpdateDate string `json:"updateDate"`
	CreateDate string `json:"createDate,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobStatus `json:"jobs"`
}

// PredictResponse carries the ranked classes of one feature row.
type PredictResponse struct {
	PredictedClasses []knn.Candidate `json:"predictedClasses"`
	PartID           int64           `json:"partID"`
	ModelVersion     int64           `json:"modelVersion,omitempty"`
}

// JobResult is the classification attached to a job.
type JobResult struct {
	IDJob            int64           `json:"idJob"`
	PartID           int64           `json:"partID"`
	ModelVersion     int64           `json:"modelVersion"`
	PredictedClasses []knn.Candidate `json:"predictedClasses"`
	CreateDate       string          `json:"createDate,omitempty"`
}

// ModelInfo describes the active model.
type ModelInfo struct {
	Version   int64    `json:"version"`
	Samples   int      `json:"samples"`
	Width     int      `json:"width"`
	Labels    []string `json:"labels"`
	Neighbors int      `json:"neighbors"`
	Weighting string   `json:"weighting"`
	TrainedAt string   `json:"trainedAt,omitempty"`
}

// CheckResult mirrors one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	JobDBPath    string         `json:"jobDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	FeatureStore string         `json:"featureStore"`
	ModelStore   string         `json:"modelStore"`
	Model        *ModelInfo     `json:"model,omitempty"`
	JobCounts    map[string]int `json:"jobCounts"`
	Checks       []CheckResult  `json:"checks,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
