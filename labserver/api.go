package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/platform/httpserver"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
	"github.com/virtlab-edu/virtlab-go/internal/service"
)

const requestBodyLimit = 1 << 20 // 1 MiB

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, requestBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// writeServiceError maps the service error taxonomy onto HTTP statuses;
// anything unrecognized is a 500 carrying the underlying error text.
func writeServiceError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case errors.Is(err, service.ErrBadID),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrKindMismatch):
		httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{Message: message, Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		httpserver.WriteJSON(w, http.StatusNotFound, errorResponse{Message: message})
	case errors.Is(err, service.ErrForbidden):
		httpserver.WriteJSON(w, http.StatusForbidden, errorResponse{Message: "Forbidden"})
	case errors.Is(err, service.ErrRunCompleted),
		errors.Is(err, service.ErrRoleAlreadySet):
		httpserver.WriteJSON(w, http.StatusConflict, errorResponse{Message: message, Error: err.Error()})
	default:
		requestID, _ := httpserver.RequestIDFromContext(r.Context())
		logger.Error(message, "request_id", requestID, "error", err)
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: message, Error: err.Error()})
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{Message: message})
}

type runResponse struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	ExperimentID    string               `json:"experimentId"`
	ExperimentTitle string               `json:"experimentTitle,omitempty"`
	Kind            string               `json:"kind"`
	Observations    []domain.Observation `json:"observations"`
	Result          domain.Result        `json:"result"`
	Stats           domain.Stats         `json:"stats"`
	IsComplete      bool                 `json:"isComplete"`
	StartedAt       time.Time            `json:"startedAt"`
	CompletedAt     *time.Time           `json:"completedAt,omitempty"`
}

func runToResponse(run domain.Run) runResponse {
	observations := run.Observations
	if observations == nil {
		observations = []domain.Observation{}
	}
	return runResponse{
		ID:              run.ID,
		UserID:          run.UserID,
		ExperimentID:    run.ExperimentID,
		ExperimentTitle: run.ExperimentTitle,
		Kind:            string(run.Kind),
		Observations:    observations,
		Result:          run.Result,
		Stats:           run.Stats,
		IsComplete:      run.IsComplete,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
	}
}

type submitterResponse struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type runListEntryResponse struct {
	runResponse
	Submitter *submitterResponse `json:"submitter,omitempty"`
}

func runListToResponse(entries []repo.RunListEntry, includeSubmitter bool) []runListEntryResponse {
	out := make([]runListEntryResponse, 0, len(entries))
	for _, entry := range entries {
		item := runListEntryResponse{runResponse: runToResponse(entry.Run)}
		if includeSubmitter && (entry.SubmitterName != "" || entry.SubmitterEmail != "") {
			item.Submitter = &submitterResponse{Name: entry.SubmitterName, Email: entry.SubmitterEmail}
		}
		out = append(out, item)
	}
	return out
}

type experimentResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Subtitle    string             `json:"subtitle,omitempty"`
	Description string             `json:"description,omitempty"`
	Kind        string             `json:"kind"`
	VideoKey    string             `json:"videoKey,omitempty"`
	CreatedBy   string             `json:"createdBy"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Creator     *submitterResponse `json:"creator,omitempty"`
}

func experimentToResponse(experiment domain.Experiment) experimentResponse {
	return experimentResponse{
		ID:          experiment.ID,
		Title:       experiment.Title,
		Subtitle:    experiment.Subtitle,
		Description: experiment.Description,
		Kind:        string(experiment.Kind),
		VideoKey:    experiment.VideoKey,
		CreatedBy:   experiment.CreatedBy,
		CreatedAt:   experiment.CreatedAt,
		UpdatedAt:   experiment.UpdatedAt,
	}
}

func experimentListToResponse(entries []repo.ExperimentListEntry) []experimentResponse {
	out := make([]experimentResponse, 0, len(entries))
	for _, entry := range entries {
		item := experimentToResponse(entry.Experiment)
		if entry.CreatorName != "" || entry.CreatorEmail != "" {
			item.Creator = &submitterResponse{Name: entry.CreatorName, Email: entry.CreatorEmail}
		}
		out = append(out, item)
	}
	return out
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Role      string `json:"role,omitempty"`
	Credits   int    `json:"credits"`
}

func userToResponse(user domain.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		Credits:   user.Credits,
	}
}
