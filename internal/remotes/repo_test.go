package remotes

import (
	"testing"

	"antsupport/internal/ident"
	"antsupport/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:remotes_"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("открытие sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Remote{}); err != nil {
		t.Fatalf("миграция: %v", err)
	}
	return NewStore(db, &ident.Sequence{Prefix: "r"})
}

func TestFirstRemoteBecomesDefault(t *testing.T) {
	s := openTestStore(t)

	first, err := s.CreateRemote(&models.Remote{DeviceID: "dev-1", Name: "Основной"})
	require.NoError(t, err)
	require.True(t, first.IsDefault)

	second, err := s.CreateRemote(&models.Remote{DeviceID: "dev-1", Name: "Запасной"})
	require.NoError(t, err)
	require.False(t, second.IsDefault)

	// Универсальные пульты дефолтными автоматически не становятся.
	uni, err := s.CreateRemote(&models.Remote{DeviceID: models.UniversalDeviceID, Name: "Универсальный"})
	require.NoError(t, err)
	require.False(t, uni.IsDefault)
}

func TestSetAsDefaultIsExclusive(t *testing.T) {
	s := openTestStore(t)
	a, err := s.CreateRemote(&models.Remote{DeviceID: "dev-1", Name: "A"})
	require.NoError(t, err)
	b, err := s.CreateRemote(&models.Remote{DeviceID: "dev-1", Name: "B"})
	require.NoError(t, err)
	require.True(t, a.IsDefault)

	require.NoError(t, s.SetAsDefault(b.ID, "dev-1"))

	var n int64
	require.NoError(t, s.DB().Model(&models.Remote{}).
		Where("device_id = ? AND is_default = ?", "dev-1", true).Count(&n).Error)
	require.EqualValues(t, 1, n)
	got, err := s.FindByID(b.ID)
	require.NoError(t, err)
	require.True(t, got.IsDefault)

	require.Error(t, s.SetAsDefault("missing", "dev-1"))
	// Пульт чужого устройства дефолтом не назначается.
	require.Error(t, s.SetAsDefault(a.ID, "dev-2"))
}

func TestDefaultForDevicePromotesMostUsed(t *testing.T) {
	s := openTestStore(t)
	a, err := s.CreateRemote(&models.Remote{DeviceID: "dev-1", Name: "A"})
	require.NoError(t, err)
	b, err := s.CreateRemote(&models.Remote{DeviceID: "dev-1", Name: "B"})
	require.NoError(t, err)

	// Явного дефолта нет: снимаем флаг напрямую.
	require.NoError(t, s.DB().Model(&models.Remote{}).
		Where("id = ?", a.ID).Update("is_default", false).Error)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementUsage(b.ID))
	}

	got, err := s.DefaultForDevice("dev-1")
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)
	require.True(t, got.IsDefault)

	// Выбор зафиксирован в БД.
	persisted, err := s.FindByID(b.ID)
	require.NoError(t, err)
	require.True(t, persisted.IsDefault)
	require.Equal(t, 3, persisted.UsageCount)
	require.NotNil(t, persisted.LastUsed)

	_, err = s.DefaultForDevice("dev-none")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDuplicateResetsDefaultsAndUsage(t *testing.T) {
	s := openTestStore(t)
	src, err := s.CreateRemote(&models.Remote{
		DeviceID: "dev-1",
		Name:     "Основной",
		Buttons:  datatypes.JSON(`[{"id":"power"}]`),
	})
	require.NoError(t, err)
	require.NoError(t, s.IncrementUsage(src.ID))

	cp, err := s.Duplicate(src.ID)
	require.NoError(t, err)
	require.NotEqual(t, src.ID, cp.ID)
	require.Equal(t, "Основной (копия)", cp.Name)
	require.False(t, cp.IsDefault)
	require.Zero(t, cp.UsageCount)
	require.Nil(t, cp.LastUsed)
	require.JSONEq(t, `[{"id":"power"}]`, string(cp.Buttons))

	_, err = s.Duplicate("missing")
	require.Error(t, err)
}

func TestByDeviceIncludesUniversal(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateRemote(&models.Remote{DeviceID: "dev-1", Name: "Свой"})
	require.NoError(t, err)
	uni, err := s.CreateRemote(&models.Remote{DeviceID: models.UniversalDeviceID, Name: "Универсальный"})
	require.NoError(t, err)
	_, err = s.CreateRemote(&models.Remote{DeviceID: "dev-2", Name: "Чужой"})
	require.NoError(t, err)
	require.NoError(t, s.IncrementUsage(uni.ID))

	out, err := s.ByDevice("dev-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Дефолтный впереди, дальше по использованию.
	require.Equal(t, "Свой", out[0].Name)
	require.Equal(t, "Универсальный", out[1].Name)
}

func TestFormatResponse(t *testing.T) {
	r := models.Remote{
		Dimensions: datatypes.JSON(`{"width":50,"height":200}`),
		Buttons:    datatypes.JSON(`[{"id":"power"},{"id":"menu"}]`),
	}
	v := FormatResponse(r)
	require.Equal(t, float64(50), v.DimensionsParsed["width"])
	require.Len(t, v.ButtonsParsed, 2)
	require.NotNil(t, v.ZonesParsed, "пустая колонка даёт пустой массив, не nil")
	require.Empty(t, v.ZonesParsed)
	require.NotNil(t, v.MetadataParsed)

	// Дважды закодированная строка — наследие старых записей.
	r.Metadata = datatypes.JSON(`"{\"layout\":\"compact\"}"`)
	v = FormatResponse(r)
	require.Equal(t, "compact", v.MetadataParsed["layout"])

	// Мусор не роняет ответ, а даёт дефолт.
	r.Buttons = datatypes.JSON(`{broken`)
	v = FormatResponse(r)
	require.Empty(t, v.ButtonsParsed)
}
