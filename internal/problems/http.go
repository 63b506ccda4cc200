package problems

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"antsupport/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type HTTP struct{ repo *Store }

func NewHTTP(r *Store) *HTTP { return &HTTP{repo: r} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	// problems
	api.HandleFunc("/problems", h.list).Methods(http.MethodGet)
	api.HandleFunc("/problems", h.create).Methods(http.MethodPost)
	api.HandleFunc("/problems/search", h.search).Methods(http.MethodGet)
	api.HandleFunc("/problems/popular", h.popular).Methods(http.MethodGet)
	api.HandleFunc("/problems/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/problems/{id}", h.update).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/problems/{id}", h.remove).Methods(http.MethodDelete)
	api.HandleFunc("/problems/{id}/restore", h.restore).Methods(http.MethodPost)
	api.HandleFunc("/problems/{id}/duplicate", h.duplicate).Methods(http.MethodPost)
	api.HandleFunc("/problems/{id}/publish", h.publish).Methods(http.MethodPost)
	api.HandleFunc("/problems/{id}/unpublish", h.unpublish).Methods(http.MethodPost)
	api.HandleFunc("/problems/{id}/can-delete", h.canDelete).Methods(http.MethodGet)
	api.HandleFunc("/problems/{id}/stats/recompute", h.recomputeStats).Methods(http.MethodPost)

	// steps
	api.HandleFunc("/problems/{id}/steps", h.listSteps).Methods(http.MethodGet)
	api.HandleFunc("/problems/{id}/steps", h.createStep).Methods(http.MethodPost)
	api.HandleFunc("/problems/{id}/steps/order", h.reorderSteps).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/problems/{id}/steps/insert", h.insertStep).Methods(http.MethodPost)
	api.HandleFunc("/problems/{id}/steps/validate", h.validateOrder).Methods(http.MethodGet)
	api.HandleFunc("/problems/{id}/steps/fix", h.fixNumbering).Methods(http.MethodPost)
	api.HandleFunc("/steps/{id}", h.deleteStep).Methods(http.MethodDelete)
	api.HandleFunc("/steps/{id}/duplicate", h.duplicateStep).Methods(http.MethodPost)
	api.HandleFunc("/steps/{id}/next", h.nextStep).Methods(http.MethodGet)
	api.HandleFunc("/steps/{id}/previous", h.previousStep).Methods(http.MethodGet)
}

func filtersFromQuery(r *http.Request) Filters {
	q := r.URL.Query()
	f := Filters{
		DeviceID: q.Get("device_id"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
		Search:   q.Get("search"),
	}
	switch q.Get("is_active") {
	case "true":
		t := true
		f.IsActive = &t
	case "false":
		b := false
		f.IsActive = &b
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		f.Offset = n
	}
	return f
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	out, err := h.repo.ListWithDetails(filtersFromQuery(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in models.Problem
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if in.Title == "" || in.DeviceID == "" {
		http.Error(w, "title and device_id required", http.StatusBadRequest)
		return
	}
	if in.Status == "" {
		in.Status = models.ProblemStatusDraft
	}
	if in.Category == "" {
		in.Category = models.ProblemCategoryOther
	}
	p, err := h.repo.Create(&in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p, err := h.repo.GetWithDetails(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "проблема не найдена", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	p, err := h.repo.UpdateByID(mux.Vars(r)["id"], in)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "проблема не найдена", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) remove(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	check, err := h.repo.CanDelete(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !check.CanDelete {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(check)
		return
	}
	if err := h.repo.SoftDelete(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) restore(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Restore(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) duplicate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		TargetDeviceID string `json:"target_device_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	p, err := h.repo.Duplicate(mux.Vars(r)["id"], in.TargetDeviceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) publish(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p, err := h.repo.Publish(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrPublishWithoutSteps) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) unpublish(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p, err := h.repo.Unpublish(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) canDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	check, err := h.repo.CanDelete(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(check)
}

func (h *HTTP) recomputeStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	ok, err := h.repo.Exists(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "проблема не найдена", http.StatusNotFound)
		return
	}
	if err := h.repo.UpdateStats(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p, err := h.repo.GetWithDetails(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (h *HTTP) search(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "q required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.repo.Search(q, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) popular(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.repo.Popular(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

// ── steps ───────────────────────────────────────────────────

func (h *HTTP) listSteps(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	out, err := h.repo.Steps().ByProblem(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) createStep(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in models.DiagnosticStep
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if in.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}
	in.ProblemID = mux.Vars(r)["id"]
	st, err := h.repo.Steps().CreateWithAutoNumber(&in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(st)
}

func (h *HTTP) reorderSteps(w http.ResponseWriter, r *http.Request) {
	var in struct {
		StepIDs []string `json:"step_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.repo.Steps().ReorderSteps(mux.Vars(r)["id"], in.StepIDs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) insertStep(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		AfterStepNumber int                   `json:"after_step_number"`
		Step            models.DiagnosticStep `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	st, err := h.repo.Steps().InsertStep(mux.Vars(r)["id"], in.AfterStepNumber, &in.Step)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(st)
}

func (h *HTTP) validateOrder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	issues, err := h.repo.Steps().ValidateStepOrder(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"valid": len(issues) == 0, "issues": issues})
}

func (h *HTTP) fixNumbering(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Steps().FixStepNumbering(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) deleteStep(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	check, err := h.repo.Steps().CanDelete(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !check.CanDelete {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(check)
		return
	}
	if err := h.repo.Steps().DeleteWithReorder(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) duplicateStep(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		TargetProblemID string `json:"target_problem_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	st, err := h.repo.Steps().Duplicate(mux.Vars(r)["id"], in.TargetProblemID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(st)
}

func (h *HTTP) nextStep(w http.ResponseWriter, r *http.Request) {
	h.adjacentStep(w, r, true)
}

func (h *HTTP) previousStep(w http.ResponseWriter, r *http.Request) {
	h.adjacentStep(w, r, false)
}

func (h *HTTP) adjacentStep(w http.ResponseWriter, r *http.Request, next bool) {
	w.Header().Set("Content-Type", "application/json")
	var st *models.DiagnosticStep
	var err error
	if next {
		st, err = h.repo.Steps().NextStep(mux.Vars(r)["id"])
	} else {
		st, err = h.repo.Steps().PreviousStep(mux.Vars(r)["id"])
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "шаг не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if st == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(st)
}
