package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/seantiz/tensord/internal/model"
)

// loadModelRequest is the JSON body for POST /v1/models. Relative paths are
// resolved under the server's model root.
type loadModelRequest struct {
	Path string   `json:"path"`
	Tags []string `json:"tags"`
}

// loadModelResponse carries the new model handle.
type loadModelResponse struct {
	ID   model.Handle `json:"id"`
	Path string       `json:"path"`
	Tags []string     `json:"tags"`
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var req loadModelRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	path := req.Path
	if s.modelRoot != "" && !filepath.IsAbs(path) {
		path = filepath.Join(s.modelRoot, path)
	}

	id, err := s.backend.LoadModel(r.Context(), path, req.Tags)
	if err != nil {
		s.writeBackendError(w, "load model", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, loadModelResponse{ID: id, Path: req.Path, Tags: req.Tags})
}

// modelCountResponse is the JSON response for GET /v1/models.
type modelCountResponse struct {
	Count int `json:"count"`
}

func (s *Server) handleModelCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.backend.ModelCount(r.Context())
	if err != nil {
		s.writeBackendError(w, "count models", err)
		return
	}
	s.writeJSON(w, http.StatusOK, modelCountResponse{Count: n})
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseHandle(w, r)
	if !ok {
		return
	}

	if err := s.backend.DeleteModel(r.Context(), id); err != nil {
		s.writeBackendError(w, "delete model", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
