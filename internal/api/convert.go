package api

import (
	"math"
	"strconv"
	"strings"

	"shapelearner/internal/classifier"
	"shapelearner/internal/jobs"
	"shapelearner/internal/knn"
	"shapelearner/internal/services"
)

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job) JobStatus {
	if job == nil {
		return JobStatus{}
	}
	dto := JobStatus{
		IDJob:      job.ID,
		JobStatus:  string(job.Status),
		PartID:     job.PartID,
		PartName:   job.PartName,
		ServerIP:   job.WorkerIP,
		ServerPort: job.WorkerPort,
		Message:    job.Message,
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdateDate = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.CreatedAt.IsZero() {
		dto.CreateDate = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of job records.
func FromJobs(list []*jobs.Job) []JobStatus {
	out := make([]JobStatus, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromResult converts an attached classification.
func FromResult(result *jobs.Result) JobResult {
	if result == nil {
		return JobResult{}
	}
	dto := JobResult{
		IDJob:            result.JobID,
		PartID:           result.PartID,
		ModelVersion:     result.ModelVersion,
		PredictedClasses: nonNil(result.Classes),
	}
	if !result.CreatedAt.IsZero() {
		dto.CreateDate = result.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromPrediction converts a classifier answer.
func FromPrediction(p classifier.Prediction) PredictResponse {
	return PredictResponse{
		PredictedClasses: nonNil(p.Classes),
		PartID:           p.PartID,
		ModelVersion:     p.ModelVersion,
	}
}

// FromModel describes a model, or returns nil when there is none.
func FromModel(model *knn.Model) *ModelInfo {
	if model == nil {
		return nil
	}
	info := &ModelInfo{
		Version:   model.Version(),
		Samples:   model.Samples(),
		Width:     model.Width(),
		Labels:    model.Labels(),
		Neighbors: model.Params().Neighbors,
		Weighting: string(model.Params().Weighting),
	}
	if !model.TrainedAt().IsZero() {
		info.TrainedAt = model.TrainedAt().UTC().Format(dateTimeFormat)
	}
	return info
}

// ToUpdateRequest validates an update payload and converts it for the job store.
func ToUpdateRequest(req UpdateJobRequest) (jobs.UpdateRequest, error) {
	status, err := jobs.ParseStatus(req.JobStatus)
	if err != nil {
		return jobs.UpdateRequest{}, err
	}
	out := jobs.UpdateRequest{
		ID:         int64(req.JobID),
		Status:     status,
		PartID:     int64(req.PartID),
		PartName:   strings.TrimSpace(req.PartName),
		WorkerIP:   strings.TrimSpace(req.ServerIP),
		WorkerPort: int(req.ServerPort),
		Message:    req.Message,
	}
	if strings.TrimSpace(req.ExpectedStatus) != "" {
		expected, err := jobs.ParseStatus(req.ExpectedStatus)
		if err != nil {
			return jobs.UpdateRequest{}, err
		}
		out.ExpectedStatus = expected
	}
	return out, nil
}

// ParsePredict validates raw route parameters. nmax and pmax are optional;
// an empty string means absent.
func ParsePredict(idRaw, nmaxRaw, pmaxRaw string) (int64, knn.Filter, error) {
	var filter knn.Filter

	id, err := strconv.ParseInt(strings.TrimSpace(idRaw), 10, 64)
	if err != nil {
		return 0, filter, invalid("id parameter must be an integer")
	}
	if id < 0 {
		return 0, filter, invalid("id parameter can't be negative")
	}

	if nmaxRaw = strings.TrimSpace(nmaxRaw); nmaxRaw != "" {
		nmax, err := strconv.Atoi(nmaxRaw)
		if err != nil {
			return 0, filter, invalid("nmax parameter must be an integer")
		}
		if nmax <= 0 {
			return 0, filter, invalid("nmax parameter can't be negative or null")
		}
		filter.NMax = &nmax
	}

	if pmaxRaw = strings.TrimSpace(pmaxRaw); pmaxRaw != "" {
		pmax, err := strconv.ParseFloat(pmaxRaw, 64)
		if err != nil || math.IsNaN(pmax) {
			return 0, filter, invalid("pmax parameter must be a number")
		}
		if pmax < 0 {
			return 0, filter, invalid("pmax parameter can't be negative")
		}
		if pmax > 100 {
			return 0, filter, invalid("pmax parameter can't be greater than 100")
		}
		filter.PMin = &pmax
	}
	return id, filter, nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, "api", "validate", message, nil)
}

func nonNil(classes []knn.Candidate) []knn.Candidate {
	if classes == nil {
		return []knn.Candidate{}
	}
	return classes
}
