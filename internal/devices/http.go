package devices

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"antsupport/internal/models"
	"antsupport/internal/store"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type HTTP struct{ repo *Store }

func NewHTTP(r *Store) *HTTP { return &HTTP{repo: r} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/devices", h.list).Methods(http.MethodGet)
	api.HandleFunc("/devices", h.create).Methods(http.MethodPost)
	api.HandleFunc("/devices/search", h.search).Methods(http.MethodGet)
	api.HandleFunc("/devices/popular", h.popular).Methods(http.MethodGet)
	api.HandleFunc("/devices/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/devices/order", h.updateOrder).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/devices/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", h.update).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/devices/{id}", h.remove).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{id}/restore", h.restore).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/can-delete", h.canDelete).Methods(http.MethodGet)
}

func listOptionsFromQuery(r *http.Request) store.ListOptions {
	q := r.URL.Query()
	opts := store.ListOptions{
		Status:    q.Get("status"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	switch q.Get("is_active") {
	case "true":
		t := true
		opts.IsActive = &t
	case "false":
		f := false
		opts.IsActive = &f
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		opts.Offset = n
	}
	return opts
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	out, err := h.repo.ListWithStats(listOptionsFromQuery(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in models.Device
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if in.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if in.Status == "" {
		in.Status = models.DeviceStatusActive
	}
	d, err := h.repo.Create(&in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(d)
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	d, err := h.repo.GetWithStats(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "устройство не найдено", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(d)
}

func (h *HTTP) update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	d, err := h.repo.UpdateByID(mux.Vars(r)["id"], in)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "устройство не найдено", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(d)
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
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "устройство не найдено", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) restore(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Restore(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "устройство не найдено", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *HTTP) stats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	st, err := h.repo.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(st)
}

func (h *HTTP) updateOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Items []OrderItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.repo.UpdateOrder(in.Items); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
