package main

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/virtlab-edu/virtlab-go/internal/platform/auditlog"
	"github.com/virtlab-edu/virtlab-go/internal/platform/auth"
	"github.com/virtlab-edu/virtlab-go/internal/platform/httpserver"
	"github.com/virtlab-edu/virtlab-go/internal/platform/objectstore"
	"github.com/virtlab-edu/virtlab-go/internal/service"
	"github.com/virtlab-edu/virtlab-go/internal/service/catalog"
)

const videoUploadMaxBytes = 100 << 20 // 100 MiB

type catalogAPI struct {
	logger   *slog.Logger
	db       *sql.DB
	catalog  *catalog.Service
	store    *minio.Client
	storeCfg objectstore.Config
}

func newCatalogAPI(logger *slog.Logger, db *sql.DB, catalogService *catalog.Service, store *minio.Client, storeCfg objectstore.Config) *catalogAPI {
	return &catalogAPI{
		logger:   logger,
		db:       db,
		catalog:  catalogService,
		store:    store,
		storeCfg: storeCfg,
	}
}

func (api *catalogAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/experiments", api.handleList)
	mux.HandleFunc("POST /api/experiments", auth.RequireAdmin(api.handleCreate))
	mux.HandleFunc("GET /api/experiments/mine", auth.RequireAdmin(api.handleListMine))
	mux.HandleFunc("GET /api/experiments/{experiment_id}", api.handleGet)
	mux.HandleFunc("DELETE /api/experiments/{experiment_id}", auth.RequireAdmin(api.handleDelete))
	mux.HandleFunc("GET /api/experiments/{experiment_id}/runs", api.handleRunsForExperiment)
	mux.HandleFunc("POST /api/experiments/{experiment_id}/video", auth.RequireAdmin(api.handleUploadVideo))
	mux.HandleFunc("GET /api/experiments/{experiment_id}/video", api.handleDownloadVideo)
}

func (api *catalogAPI) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := api.catalog.List(r.Context())
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to load experiments", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, experimentListToResponse(entries))
}

func (api *catalogAPI) handleListMine(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	caller := service.Caller{UserID: identity.UserID, Role: identity.Role}
	entries, err := api.catalog.ListMine(r.Context(), caller)
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to load experiments", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, experimentListToResponse(entries))
}

func (api *catalogAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	experiment, err := api.catalog.Get(r.Context(), r.PathValue("experiment_id"))
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to load experiment", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, experimentToResponse(experiment))
}

type createExperimentRequest struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	Kind        string `json:"type"`
	VideoKey    string `json:"videoKey"`
}

func (api *catalogAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	var req createExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	caller := service.Caller{UserID: identity.UserID, Role: identity.Role}
	experiment, err := api.catalog.Create(r.Context(), caller, catalog.CreateInput{
		Title:       req.Title,
		Subtitle:    req.Subtitle,
		Description: req.Description,
		Kind:        req.Kind,
		VideoKey:    req.VideoKey,
	})
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to create experiment", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, experimentToResponse(experiment))
}

func (api *catalogAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	experimentID := r.PathValue("experiment_id")
	caller := service.Caller{UserID: identity.UserID, Role: identity.Role}
	if err := api.catalog.Delete(r.Context(), caller, experimentID); err != nil {
		writeServiceError(api.logger, w, r, "Failed to delete experiment", err)
		return
	}
	api.auditDestructive(r, identity, "experiment.delete", experimentID)
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"message": "Experiment deleted successfully"})
}

func (api *catalogAPI) handleRunsForExperiment(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	caller := service.Caller{UserID: identity.UserID, Role: identity.Role}
	entries, err := api.catalog.RunsForExperiment(r.Context(), caller, r.PathValue("experiment_id"))
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to fetch runs", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, runListToResponse(entries, identity.IsAdmin()))
}

func (api *catalogAPI) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "video storage is not configured"})
		return
	}
	experimentID := r.PathValue("experiment_id")
	experiment, err := api.catalog.Get(r.Context(), experimentID)
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to load experiment", err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "video/") {
		writeBadRequest(w, "a video/* content type is required")
		return
	}
	key := path.Join("videos", experiment.ID, "demo"+extensionForContentType(contentType))

	body := http.MaxBytesReader(w, r.Body, videoUploadMaxBytes)
	if _, err := api.store.PutObject(r.Context(), api.storeCfg.BucketVideos, key, body, -1, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		writeServiceError(api.logger, w, r, "Failed to store video", err)
		return
	}
	if err := api.catalog.AttachVideo(r.Context(), experiment.ID, key); err != nil {
		writeServiceError(api.logger, w, r, "Failed to attach video", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, map[string]any{"videoKey": key})
}

func (api *catalogAPI) handleDownloadVideo(w http.ResponseWriter, r *http.Request) {
	if api.store == nil {
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "video storage is not configured"})
		return
	}
	experiment, err := api.catalog.Get(r.Context(), r.PathValue("experiment_id"))
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to load experiment", err)
		return
	}
	if experiment.VideoKey == "" {
		httpserver.WriteJSON(w, http.StatusNotFound, errorResponse{Message: "experiment has no video"})
		return
	}

	object, err := api.store.GetObject(r.Context(), api.storeCfg.BucketVideos, experiment.VideoKey, minio.GetObjectOptions{})
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to load video", err)
		return
	}
	defer func() { _ = object.Close() }()

	stat, err := object.Stat()
	if err != nil {
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.StatusCode == http.StatusNotFound {
			httpserver.WriteJSON(w, http.StatusNotFound, errorResponse{Message: "video object missing"})
			return
		}
		writeServiceError(api.logger, w, r, "Failed to load video", err)
		return
	}
	if stat.ContentType != "" {
		w.Header().Set("Content-Type", stat.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, object)
}

func extensionForContentType(contentType string) string {
	switch contentType {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/ogg":
		return ".ogv"
	default:
		return ""
	}
}

func (api *catalogAPI) auditDestructive(r *http.Request, identity auth.Identity, action, resourceID string) {
	if api.db == nil {
		return
	}
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	if _, err := auditlog.Insert(r.Context(), api.db, auditlog.Event{
		Actor:        identity.UserID,
		Action:       action,
		ResourceType: "experiment",
		ResourceID:   resourceID,
		RequestID:    requestID,
		UserAgent:    r.UserAgent(),
	}); err != nil {
		api.logger.Error("audit insert failed", "action", action, "error", err)
	}
}
