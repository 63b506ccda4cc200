package devices

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"antsupport/internal/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*Store, *mux.Router) {
	t.Helper()
	s := openTestStore(t)
	r := mux.NewRouter()
	NewHTTP(s).RegisterRoutes(r)
	return s, r
}

func doJSON(t *testing.T, r *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDeviceCRUDOverHTTP(t *testing.T) {
	_, r := newTestAPI(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/devices", `{"name":"Приставка","brand":"ANT"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, models.DeviceStatusActive, created.Status, "статус по умолчанию")

	rec = doJSON(t, r, http.MethodPost, "/api/v1/devices", `{"brand":"ANT"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "без имени устройство не создаётся")

	rec = doJSON(t, r, http.MethodGet, "/api/v1/devices/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.DeviceWithStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Приставка", got.Name)
	require.Zero(t, got.ProblemsCount)

	rec = doJSON(t, r, http.MethodPut, "/api/v1/devices/"+created.ID, `{"name":"Приставка 2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/devices/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceDeleteConflictOverHTTP(t *testing.T) {
	s, r := newTestAPI(t)
	d := seedDevice(t, s, "Приставка", models.DeviceStatusActive)
	seedRemote(t, s, d.ID)

	rec := doJSON(t, r, http.MethodDelete, "/api/v1/devices/"+d.ID, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	var check models.DeleteCheck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	require.False(t, check.CanDelete)
	require.NotEmpty(t, check.Reason)
	require.NotEmpty(t, check.Suggestion)

	// Отвязали пульт — удаление проходит, запись уходит в архив.
	remote := &models.Remote{}
	require.NoError(t, s.DB().Model(remote).Where("device_id = ?", d.ID).Update("is_active", false).Error)
	rec = doJSON(t, r, http.MethodDelete, "/api/v1/devices/"+d.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := s.FindByID(d.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/devices/"+d.ID+"/restore", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	got, err = s.FindByID(d.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)
}

func TestDeviceOrderOverHTTP(t *testing.T) {
	s, r := newTestAPI(t)
	a := seedDevice(t, s, "Alpha", models.DeviceStatusActive)
	b := seedDevice(t, s, "Beta", models.DeviceStatusActive)

	body, _ := json.Marshal(map[string]any{"items": []OrderItem{
		{ID: a.ID, OrderIndex: 2},
		{ID: b.ID, OrderIndex: 1},
	}})
	rec := doJSON(t, r, http.MethodPut, "/api/v1/devices/order", string(body))
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := s.FindByID(a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.OrderIndex)
}
