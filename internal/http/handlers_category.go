package http

import (
	"net/http"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Categories.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleSeedCategories(w http.ResponseWriter, r *http.Request) {
	owner := auth.UserID(r.Context())
	seeded, err := s.deps.Categories.SeedDefaults(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.deps.Categories.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if seeded {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"seeded": seeded, "categories": cats})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in services.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Name = sanitizeInput(in.Name)
	c, err := s.deps.Categories.Create(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var patch core.CategoryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	patch.Name = sanitizeOptional(patch.Name)
	c, err := s.deps.Categories.Update(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Categories.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
