package main

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/platform/auditlog"
	"github.com/virtlab-edu/virtlab-go/internal/platform/auth"
	"github.com/virtlab-edu/virtlab-go/internal/platform/httpserver"
	"github.com/virtlab-edu/virtlab-go/internal/platform/notify"
	"github.com/virtlab-edu/virtlab-go/internal/service"
	"github.com/virtlab-edu/virtlab-go/internal/service/runs"
)

type runsAPI struct {
	logger   *slog.Logger
	db       *sql.DB
	services map[domain.Kind]*runs.Service
	events   *notify.Registry
}

func newRunsAPI(logger *slog.Logger, db *sql.DB, services map[domain.Kind]*runs.Service, events *notify.Registry) *runsAPI {
	return &runsAPI{
		logger:   logger,
		db:       db,
		services: services,
		events:   events,
	}
}

// runRouteSegment maps a kind to its URL segment, e.g. /api/titration-runs.
func runRouteSegment(kind domain.Kind) string {
	switch kind {
	case domain.KindTitration:
		return "titration-runs"
	case domain.KindDistillation:
		return "distillation-runs"
	case domain.KindSaltAnalysis:
		return "salt-analysis-runs"
	default:
		return string(kind)
	}
}

func (api *runsAPI) register(mux *http.ServeMux) {
	for kind, svc := range api.services {
		base := "/api/" + runRouteSegment(kind)
		mux.HandleFunc("POST "+base, api.handleStart(svc))
		mux.HandleFunc("GET "+base, api.handleList(svc))
		mux.HandleFunc("GET "+base+"/status/{experiment_id}", api.handleCompletionStatus(svc))
		mux.HandleFunc("GET "+base+"/{run_id}", api.handleGet(svc))
		mux.HandleFunc("POST "+base+"/{run_id}/observations", api.handleAddObservation(svc))
		mux.HandleFunc("POST "+base+"/{run_id}/finalize", api.handleFinalize(svc))
		mux.HandleFunc("DELETE "+base+"/{run_id}", api.handleDelete(svc))
	}
}

type startRunRequest struct {
	ExperimentID string `json:"experimentId"`
}

func (api *runsAPI) handleStart(svc *runs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
			return
		}
		var req startRunRequest
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		if req.ExperimentID == "" {
			writeBadRequest(w, "experimentId required")
			return
		}

		run, err := svc.Start(r.Context(), identity.UserID, req.ExperimentID)
		if err != nil {
			writeServiceError(api.logger, w, r, "Failed to start run", err)
			return
		}
		api.broadcast(notify.EventRunStarted, run)
		httpserver.WriteJSON(w, http.StatusCreated, runToResponse(run))
	}
}

type titrationObservationRequest struct {
	Message string   `json:"message"`
	Volume  *float64 `json:"volume"`
	PH      *float64 `json:"pH"`
	Color   string   `json:"color"`
}

type distillationObservationRequest struct {
	Message     string   `json:"message"`
	Temperature *float64 `json:"temperature"`
	Vapor       string   `json:"vapor"`
	CollectedA  *float64 `json:"collectedA"`
	CollectedB  *float64 `json:"collectedB"`
}

type saltAnalysisObservationRequest struct {
	Message     string `json:"message"`
	TestType    string `json:"testType"`
	TestName    string `json:"testName"`
	Result      string `json:"result"`
	Reagent     string `json:"reagent"`
	Observation string `json:"observation"`
}

func decodeObservation(r *http.Request, kind domain.Kind) (runs.ObservationInput, error) {
	switch kind {
	case domain.KindTitration:
		var req titrationObservationRequest
		if err := decodeJSON(r, &req); err != nil {
			return runs.ObservationInput{}, err
		}
		return runs.ObservationInput{
			Message: req.Message,
			Volume:  req.Volume,
			PH:      req.PH,
			Color:   req.Color,
		}, nil
	case domain.KindDistillation:
		var req distillationObservationRequest
		if err := decodeJSON(r, &req); err != nil {
			return runs.ObservationInput{}, err
		}
		return runs.ObservationInput{
			Message:     req.Message,
			Temperature: req.Temperature,
			Vapor:       req.Vapor,
			CollectedA:  req.CollectedA,
			CollectedB:  req.CollectedB,
		}, nil
	default:
		var req saltAnalysisObservationRequest
		if err := decodeJSON(r, &req); err != nil {
			return runs.ObservationInput{}, err
		}
		return runs.ObservationInput{
			Message:  req.Message,
			TestType: req.TestType,
			TestName: req.TestName,
			Result:   req.Result,
			Reagent:  req.Reagent,
			Detail:   req.Observation,
		}, nil
	}
}

func (api *runsAPI) handleAddObservation(svc *runs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
			return
		}
		input, err := decodeObservation(r, svc.Kind())
		if err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}

		run, err := svc.AddObservation(r.Context(), identity.UserID, r.PathValue("run_id"), input)
		if err != nil {
			writeServiceError(api.logger, w, r, "Failed to add observation", err)
			return
		}
		api.broadcast(notify.EventRunObserved, run)
		httpserver.WriteJSON(w, http.StatusCreated, runToResponse(run))
	}
}

type titrationFinalizeRequest struct {
	FinalVolume *float64 `json:"finalVolume"`
	FinalPH     *float64 `json:"finalPH"`
	FinalColor  *string  `json:"finalColor"`
}

type distillationFinalizeRequest struct {
	FractionBreakPoint *float64 `json:"fractionBreakPoint"`
}

type saltAnalysisFinalizeRequest struct {
	DetectedCation *string `json:"detectedCation"`
	DetectedAnion  *string `json:"detectedAnion"`
	FinalResult    *string `json:"finalResult"`
}

func decodeFinalize(r *http.Request, kind domain.Kind) (runs.FinalizeInput, error) {
	switch kind {
	case domain.KindTitration:
		var req titrationFinalizeRequest
		if err := decodeJSON(r, &req); err != nil {
			return runs.FinalizeInput{}, err
		}
		return runs.FinalizeInput{Titration: &runs.TitrationFinal{
			FinalVolume: req.FinalVolume,
			FinalPH:     req.FinalPH,
			FinalColor:  req.FinalColor,
		}}, nil
	case domain.KindDistillation:
		var req distillationFinalizeRequest
		if err := decodeJSON(r, &req); err != nil {
			return runs.FinalizeInput{}, err
		}
		return runs.FinalizeInput{Distillation: &runs.DistillationFinal{
			FractionBreakPoint: req.FractionBreakPoint,
		}}, nil
	default:
		var req saltAnalysisFinalizeRequest
		if err := decodeJSON(r, &req); err != nil {
			return runs.FinalizeInput{}, err
		}
		return runs.FinalizeInput{SaltAnalysis: &runs.SaltAnalysisFinal{
			DetectedCation: req.DetectedCation,
			DetectedAnion:  req.DetectedAnion,
			FinalResult:    req.FinalResult,
		}}, nil
	}
}

func (api *runsAPI) handleFinalize(svc *runs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
			return
		}
		input, err := decodeFinalize(r, svc.Kind())
		if err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}

		run, err := svc.Finalize(r.Context(), identity.UserID, r.PathValue("run_id"), input)
		if err != nil {
			writeServiceError(api.logger, w, r, "Failed to finalize run", err)
			return
		}
		api.broadcast(notify.EventRunFinalized, run)
		httpserver.WriteJSON(w, http.StatusOK, runToResponse(run))
	}
}

func (api *runsAPI) handleDelete(svc *runs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
			return
		}
		runID := r.PathValue("run_id")
		caller := service.Caller{UserID: identity.UserID, Role: identity.Role}
		if err := svc.Delete(r.Context(), caller, runID); err != nil {
			writeServiceError(api.logger, w, r, "Failed to delete run", err)
			return
		}
		api.auditDestructive(r, identity, "run.delete", string(svc.Kind()), runID)
		api.events.Broadcast(notify.Event{
			Type:   notify.EventRunDeleted,
			RunID:  runID,
			UserID: identity.UserID,
			Kind:   string(svc.Kind()),
		})
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{"message": "Run deleted"})
	}
}

func (api *runsAPI) handleList(svc *runs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
			return
		}
		caller := service.Caller{UserID: identity.UserID, Role: identity.Role}
		entries, err := svc.List(r.Context(), caller)
		if err != nil {
			writeServiceError(api.logger, w, r, "Failed to load runs", err)
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, runListToResponse(entries, identity.IsAdmin()))
	}
}

func (api *runsAPI) handleGet(svc *runs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
			return
		}
		caller := service.Caller{UserID: identity.UserID, Role: identity.Role}
		run, err := svc.Get(r.Context(), caller, r.PathValue("run_id"))
		if err != nil {
			writeServiceError(api.logger, w, r, "Failed to load run", err)
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, runToResponse(run))
	}
}

func (api *runsAPI) handleCompletionStatus(svc *runs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
			return
		}
		status, err := svc.CompletionStatus(r.Context(), identity.UserID, r.PathValue("experiment_id"))
		if err != nil {
			writeServiceError(api.logger, w, r, "Failed to check experiment status", err)
			return
		}
		var runID *string
		if status.RunID != "" {
			runID = &status.RunID
		}
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{
			"isCompleted": status.IsCompleted,
			"runId":       runID,
		})
	}
}

func (api *runsAPI) broadcast(eventType string, run domain.Run) {
	api.events.Broadcast(notify.Event{
		Type:         eventType,
		RunID:        run.ID,
		UserID:       run.UserID,
		Kind:         string(run.Kind),
		ExperimentID: run.ExperimentID,
	})
}

func (api *runsAPI) auditDestructive(r *http.Request, identity auth.Identity, action, resourceType, resourceID string) {
	if api.db == nil {
		return
	}
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	if _, err := auditlog.Insert(r.Context(), api.db, auditlog.Event{
		Actor:        identity.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    requestID,
		UserAgent:    r.UserAgent(),
	}); err != nil {
		api.logger.Error("audit insert failed", "action", action, "error", err)
	}
}
