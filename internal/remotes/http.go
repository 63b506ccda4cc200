package remotes

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

	api.HandleFunc("/remotes", h.list).Methods(http.MethodGet)
	api.HandleFunc("/remotes", h.create).Methods(http.MethodPost)
	api.HandleFunc("/remotes/search", h.search).Methods(http.MethodGet)
	api.HandleFunc("/remotes/usage", h.usage).Methods(http.MethodGet)
	api.HandleFunc("/remotes/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/remotes/{id}", h.update).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/remotes/{id}", h.remove).Methods(http.MethodDelete)
	api.HandleFunc("/remotes/{id}/duplicate", h.duplicate).Methods(http.MethodPost)
	api.HandleFunc("/remotes/{id}/use", h.incrementUsage).Methods(http.MethodPost)
	api.HandleFunc("/devices/{deviceID}/remotes", h.byDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceID}/remotes/default", h.defaultForDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceID}/remotes/{id}/default", h.setAsDefault).Methods(http.MethodPost)
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	t := true
	opts := store.ListOptions{IsActive: &t}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		opts.Limit = n
	}
	rows, err := h.repo.FindAll(opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]models.RemoteView, 0, len(rows))
	for _, row := range rows {
		out = append(out, FormatResponse(row))
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in models.Remote
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if in.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if in.Layout == "" {
		in.Layout = models.RemoteLayoutStandard
	}
	rem, err := h.repo.CreateRemote(&in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(FormatResponse(*rem))
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	rem, err := h.repo.FindByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "пульт не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(FormatResponse(*rem))
}

func (h *HTTP) update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	rem, err := h.repo.UpdateByID(mux.Vars(r)["id"], in)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "пульт не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(FormatResponse(*rem))
}

func (h *HTTP) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.SoftDelete(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "пульт не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) duplicate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	rem, err := h.repo.Duplicate(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(FormatResponse(*rem))
}

func (h *HTTP) incrementUsage(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.IncrementUsage(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "пульт не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) byDevice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	rows, err := h.repo.ByDevice(mux.Vars(r)["deviceID"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]models.RemoteView, 0, len(rows))
	for _, row := range rows {
		out = append(out, FormatResponse(row))
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) defaultForDevice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	rem, err := h.repo.DefaultForDevice(mux.Vars(r)["deviceID"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "у устройства нет пультов", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(FormatResponse(*rem))
}

func (h *HTTP) setAsDefault(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.repo.SetAsDefault(vars["id"], vars["deviceID"]); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
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
	rows, err := h.repo.Search(q, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]models.RemoteView, 0, len(rows))
	for _, row := range rows {
		out = append(out, FormatResponse(row))
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) usage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.repo.UsageStats(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}
