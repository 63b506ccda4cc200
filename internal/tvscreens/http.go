package tvscreens

import (
	"encoding/json"
	"errors"
	"net/http"

	"antsupport/internal/models"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type HTTP struct {
	repo  *Store
	marks *MarkStore
}

func NewHTTP(r *Store, m *MarkStore) *HTTP { return &HTTP{repo: r, marks: m} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/tv-interfaces", h.list).Methods(http.MethodGet)
	api.HandleFunc("/tv-interfaces", h.create).Methods(http.MethodPost)
	api.HandleFunc("/tv-interfaces/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/tv-interfaces/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/tv-interfaces/{id}", h.update).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/tv-interfaces/{id}", h.remove).Methods(http.MethodDelete)
	api.HandleFunc("/tv-interfaces/{id}/lightweight", h.getLightweight).Methods(http.MethodGet)
	api.HandleFunc("/tv-interfaces/{id}/toggle", h.toggle).Methods(http.MethodPost)
	api.HandleFunc("/tv-interfaces/{id}/duplicate", h.duplicate).Methods(http.MethodPost)

	api.HandleFunc("/tv-interfaces/{id}/marks", h.listMarks).Methods(http.MethodGet)
	api.HandleFunc("/tv-interfaces/{id}/marks", h.createMark).Methods(http.MethodPost)
	api.HandleFunc("/tv-interfaces/{id}/marks/order", h.reorderMarks).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/tv-interfaces/{id}/marks/stats", h.markStats).Methods(http.MethodGet)
	api.HandleFunc("/marks/{id}", h.getMark).Methods(http.MethodGet)
	api.HandleFunc("/marks/{id}", h.updateMark).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/marks/{id}", h.removeMark).Methods(http.MethodDelete)
	api.HandleFunc("/steps/{id}/marks", h.marksByStep).Methods(http.MethodGet)
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	q := r.URL.Query()
	f := ListFilters{DeviceID: q.Get("device_id"), Type: q.Get("type")}
	switch q.Get("is_active") {
	case "true":
		t := true
		f.IsActive = &t
	case "false":
		b := false
		f.IsActive = &b
	}
	out, err := h.repo.List(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in models.TVInterface
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	iface, err := h.repo.CreateInterface(&in)
	if err != nil {
		switch {
		case errors.Is(err, ErrNameRequired):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrDeviceNotFound):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(iface)
}

// get всегда отдаёт полный screenshot_data.
func (h *HTTP) get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	iface, err := h.repo.FindByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "интерфейс не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(iface)
}

func (h *HTTP) getLightweight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	iface, err := h.repo.GetLightweight(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "интерфейс не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(iface)
}

func (h *HTTP) update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	iface, err := h.repo.UpdateInterface(mux.Vars(r)["id"], in)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "интерфейс не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(iface)
}

func (h *HTTP) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.SoftDelete(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "интерфейс не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) toggle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	iface, err := h.repo.ToggleStatus(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "интерфейс не найден", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(iface)
}

func (h *HTTP) duplicate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	iface, err := h.repo.DuplicateInterface(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(iface)
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

// ── marks ───────────────────────────────────────────────────

func (h *HTTP) listMarks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	onlyVisible := r.URL.Query().Get("visible") == "true"
	out, err := h.marks.ByInterface(mux.Vars(r)["id"], onlyVisible)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) createMark(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in models.TVInterfaceMark
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	in.TVInterfaceID = mux.Vars(r)["id"]
	m, err := h.marks.CreateMark(&in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(m)
}

func (h *HTTP) getMark(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	m, err := h.marks.GetMark(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "отметка не найдена", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(m)
}

func (h *HTTP) updateMark(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	m, err := h.marks.UpdateMark(mux.Vars(r)["id"], in)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "отметка не найдена", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(m)
}

func (h *HTTP) removeMark(w http.ResponseWriter, r *http.Request) {
	if err := h.marks.Delete(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "отметка не найдена", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) reorderMarks(w http.ResponseWriter, r *http.Request) {
	var in struct {
		MarkIDs []string `json:"mark_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.marks.Reorder(mux.Vars(r)["id"], in.MarkIDs); err != nil {
		if errors.Is(err, ErrNoDisplayOrder) {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) markStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	st, err := h.marks.MarkStats(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(st)
}

func (h *HTTP) marksByStep(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	out, err := h.marks.ByStep(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}
