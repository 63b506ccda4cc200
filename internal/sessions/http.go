package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// HTTP — API мастера диагностики для конечного пользователя плюс аналитика.
type HTTP struct{ repo *Store }

func NewHTTP(r *Store) *HTTP { return &HTTP{repo: r} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sessions", h.start).Methods(http.MethodPost)
	api.HandleFunc("/sessions/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/popular-problems", h.popularProblems).Methods(http.MethodGet)
	api.HandleFunc("/sessions/analytics", h.analytics).Methods(http.MethodGet)
	api.HandleFunc("/sessions/cleanup", h.cleanup).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/steps", h.steps).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/progress", h.progress).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/complete", h.complete).Methods(http.MethodPost)
}

func (h *HTTP) start(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		DeviceID   string `json:"device_id"`
		ProblemID  string `json:"problem_id"`
		SessionKey string `json:"session_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ProblemID == "" {
		http.Error(w, "invalid body (need {problem_id})", http.StatusBadRequest)
		return
	}
	sess, err := h.repo.StartSession(in.DeviceID, in.ProblemID, in.SessionKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sess)
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess, err := h.repo.FindByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, ErrSessionNotFound.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(sess)
}

func (h *HTTP) steps(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	out, err := h.repo.SessionSteps(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) progress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		StepID string `json:"step_id"`
		StepResult
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.StepID == "" {
		http.Error(w, "invalid body (need {step_id})", http.StatusBadRequest)
		return
	}
	sess, err := h.repo.UpdateProgress(mux.Vars(r)["id"], in.StepID, in.StepResult)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrSessionFinished):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(sess)
}

func (h *HTTP) complete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct {
		Success  bool   `json:"success"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sess, err := h.repo.CompleteSession(mux.Vars(r)["id"], in.Success, in.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrSessionFinished):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(sess)
}

func parseTimeParam(r *http.Request, name string) *time.Time {
	if v := r.URL.Query().Get(name); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}
	return nil
}

func (h *HTTP) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	st, err := h.repo.Stats(parseTimeParam(r, "from"), parseTimeParam(r, "to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(st)
}

func (h *HTTP) popularProblems(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.repo.PopularProblems(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (h *HTTP) analytics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	gran := r.URL.Query().Get("granularity")
	if gran == "" {
		gran = "day"
	}
	out, err := h.repo.TimeAnalytics(gran, parseTimeParam(r, "from"), parseTimeParam(r, "to"))
	if err != nil {
		if errors.Is(err, ErrUnknownInterval) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

// cleanup — ручной запуск свипа (тот же код гоняет фоновый тикер сервера).
func (h *HTTP) cleanup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	abandonAfter := 24 * time.Hour
	retention := 90 * 24 * time.Hour
	if v, err := strconv.Atoi(r.URL.Query().Get("abandon_hours")); err == nil && v > 0 {
		abandonAfter = time.Duration(v) * time.Hour
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("retention_days")); err == nil && v > 0 {
		retention = time.Duration(v) * 24 * time.Hour
	}
	rep, err := h.repo.CleanupOldSessions(abandonAfter, retention)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rep)
}
