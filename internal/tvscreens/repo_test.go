package tvscreens

import (
	"strings"
	"testing"
	"time"

	"antsupport/internal/db"
	"antsupport/internal/ident"
	"antsupport/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file:tvscreens_"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("открытие sqlite: %v", err)
	}
	return gdb
}

// openFullStore — свежая схема: все опциональные колонки на месте.
func openFullStore(t *testing.T) (*Store, *MarkStore) {
	t.Helper()
	gdb := openTestDB(t)
	if err := gdb.AutoMigrate(&models.Device{}, &models.TVInterface{}, &models.TVInterfaceMark{}); err != nil {
		t.Fatalf("миграция: %v", err)
	}
	caps := db.ResolveCapabilities(gdb)
	require.True(t, caps.InterfaceClickableAreas)
	require.True(t, caps.MarkDisplayOrder)
	ids := &ident.Sequence{Prefix: "tv"}
	return NewStore(gdb, ids, caps), NewMarkStore(gdb, ids, caps)
}

func seedDevice(t *testing.T, gdb *gorm.DB, id string) {
	t.Helper()
	d := &models.Device{Name: "STB", Status: models.DeviceStatusActive}
	d.ID = id
	d.PrepareInsert(id, time.Now())
	require.NoError(t, gdb.Create(d).Error)
}

func TestCreateInterfaceValidation(t *testing.T) {
	s, _ := openFullStore(t)
	seedDevice(t, s.DB(), "dev-1")

	_, err := s.CreateInterface(&models.TVInterface{DeviceID: "dev-1"})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = s.CreateInterface(&models.TVInterface{DeviceID: "ghost", Name: "Главный экран"})
	require.ErrorIs(t, err, ErrDeviceNotFound)

	iface, err := s.CreateInterface(&models.TVInterface{DeviceID: "dev-1", Name: "Главный экран"})
	require.NoError(t, err)
	require.Equal(t, models.TVInterfaceCustom, iface.Type, "тип по умолчанию — custom")
	require.True(t, iface.IsActive)
}

func TestListElidesOversizedScreenshots(t *testing.T) {
	s, _ := openFullStore(t)
	seedDevice(t, s.DB(), "dev-1")

	small, err := s.CreateInterface(&models.TVInterface{
		DeviceID: "dev-1", Name: "Маленький", ScreenshotData: "data:image/png;base64,AAAA",
	})
	require.NoError(t, err)
	big := strings.Repeat("a", db.OversizedScreenshotBytes+1)
	huge, err := s.CreateInterface(&models.TVInterface{
		DeviceID: "dev-1", Name: "Большой", ScreenshotData: big,
	})
	require.NoError(t, err)

	rows, err := s.List(ListFilters{DeviceID: "dev-1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byName := map[string]models.TVInterfaceListItem{}
	for _, r := range rows {
		byName[r.Name] = r
	}

	require.NotEmpty(t, byName["Маленький"].ScreenshotData, "маленький скриншот отдаётся как есть")
	require.True(t, byName["Маленький"].HasScreenshotData)

	require.Empty(t, byName["Большой"].ScreenshotData, "тяжёлый скриншот в списке опускается")
	require.True(t, byName["Большой"].HasScreenshotData)
	require.Equal(t, len(big), byName["Большой"].ScreenshotDataSize)

	// Полное чтение по id тело не режет.
	full, err := s.FindByID(huge.ID)
	require.NoError(t, err)
	require.Len(t, full.ScreenshotData, len(big))

	// Облегчённое чтение режет всегда.
	lw, err := s.GetLightweight(small.ID)
	require.NoError(t, err)
	require.Empty(t, lw.ScreenshotData)
	require.True(t, lw.HasScreenshotData)
}

func TestToggleAndDuplicate(t *testing.T) {
	s, _ := openFullStore(t)
	seedDevice(t, s.DB(), "dev-1")
	iface, err := s.CreateInterface(&models.TVInterface{DeviceID: "dev-1", Name: "Экран"})
	require.NoError(t, err)

	got, err := s.ToggleStatus(iface.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	got, err = s.ToggleStatus(iface.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)

	cp, err := s.DuplicateInterface(iface.ID)
	require.NoError(t, err)
	require.NotEqual(t, iface.ID, cp.ID)
	require.Equal(t, "Экран (копия)", cp.Name)
	require.False(t, cp.IsActive, "копия неактивна до ручной проверки")
}

func TestInterfaceStats(t *testing.T) {
	s, marks := openFullStore(t)
	seedDevice(t, s.DB(), "dev-1")

	a, err := s.CreateInterface(&models.TVInterface{DeviceID: "dev-1", Name: "a", Type: models.TVInterfaceHome})
	require.NoError(t, err)
	b, err := s.CreateInterface(&models.TVInterface{
		DeviceID: "dev-1", Name: "b",
		ScreenshotData: strings.Repeat("a", db.OversizedScreenshotBytes+1),
	})
	require.NoError(t, err)
	_, err = s.ToggleStatus(b.ID)
	require.NoError(t, err)

	_, err = marks.CreateMark(&models.TVInterfaceMark{TVInterfaceID: a.ID, Name: "м1"})
	require.NoError(t, err)
	_, err = marks.CreateMark(&models.TVInterfaceMark{TVInterfaceID: a.ID, Name: "м2"})
	require.NoError(t, err)

	st, err := s.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, st.Total)
	require.EqualValues(t, 1, st.Active)
	require.EqualValues(t, 1, st.Oversized)
	require.EqualValues(t, 2, st.TotalMarks)
	require.EqualValues(t, 1, st.WithMarks)
	require.EqualValues(t, 1, st.ByType["home"])
	require.EqualValues(t, 1, st.ByType["custom"])
}

func TestMarkDefaultsAndReorder(t *testing.T) {
	s, marks := openFullStore(t)
	seedDevice(t, s.DB(), "dev-1")
	iface, err := s.CreateInterface(&models.TVInterface{DeviceID: "dev-1", Name: "Экран"})
	require.NoError(t, err)

	_, err = marks.CreateMark(&models.TVInterfaceMark{Name: "без интерфейса"})
	require.Error(t, err)

	m1, err := marks.CreateMark(&models.TVInterfaceMark{TVInterfaceID: iface.ID, Name: "м1"})
	require.NoError(t, err)
	require.Equal(t, models.MarkTypePoint, m1.MarkType)
	require.Equal(t, models.MarkShapeCircle, m1.Shape)
	require.Equal(t, models.MarkSize{Width: 20, Height: 20}, models.DecodeMarkSize(m1.Size))
	pos := models.DecodeObject(m1.Position)
	require.EqualValues(t, 0, pos["x"])

	m2, err := marks.CreateMark(&models.TVInterfaceMark{
		TVInterfaceID: iface.ID, Name: "м2",
		Size: datatypes.JSON(`{"width":40,"height":10}`),
	})
	require.NoError(t, err)
	require.Equal(t, models.MarkSize{Width: 40, Height: 10}, models.DecodeMarkSize(m2.Size))

	require.NoError(t, marks.Reorder(iface.ID, []string{m2.ID, m1.ID}))
	got, err := marks.ByInterface(iface.ID, false)
	require.NoError(t, err)
	require.Equal(t, []string{"м2", "м1"}, []string{got[0].Name, got[1].Name})
	require.Equal(t, 1, got[0].DisplayOrder)
	require.Equal(t, 2, got[1].DisplayOrder)

	err = marks.Reorder(iface.ID, []string{m1.ID, "foreign"})
	require.Error(t, err)
	got, err = marks.ByInterface(iface.ID, false)
	require.NoError(t, err)
	require.Equal(t, "м2", got[0].Name, "неудачный reorder не должен применяться частично")
}

func TestMarksVisibilityAndSteps(t *testing.T) {
	s, marks := openFullStore(t)
	seedDevice(t, s.DB(), "dev-1")
	iface, err := s.CreateInterface(&models.TVInterface{DeviceID: "dev-1", Name: "Экран"})
	require.NoError(t, err)

	shown, err := marks.CreateMark(&models.TVInterfaceMark{
		TVInterfaceID: iface.ID, Name: "видимая", IsVisible: true, IsClickable: true, StepID: "step-1",
	})
	require.NoError(t, err)
	hidden, err := marks.CreateMark(&models.TVInterfaceMark{TVInterfaceID: iface.ID, Name: "скрытая"})
	require.NoError(t, err)
	// default:true в схеме, поэтому прячем явным обновлением.
	_, err = marks.UpdateMark(hidden.ID, map[string]any{"is_visible": false})
	require.NoError(t, err)

	all, err := marks.ByInterface(iface.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	visible, err := marks.ByInterface(iface.ID, true)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, "видимая", visible[0].Name)

	byStep, err := marks.ByStep("step-1")
	require.NoError(t, err)
	require.Len(t, byStep, 1)
	require.Equal(t, shown.ID, byStep[0].ID)

	st, err := marks.MarkStats(iface.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, st.Total)
	require.EqualValues(t, 1, st.Visible)
	require.EqualValues(t, 1, st.Clickable)
	require.EqualValues(t, 2, st.ByType["point"])
	require.EqualValues(t, 2, st.ByShape["circle"])
}

// reducedMarksDDL — таблица отметок без опциональных колонок: так выглядит
// схема, до которой не докатились поздние миграции.
const reducedMarksDDL = `CREATE TABLE tv_interface_marks (
	id char(36) PRIMARY KEY,
	tv_interface_id char(36),
	name varchar(255),
	description text,
	position text,
	coordinates text,
	color varchar(32),
	background_color varchar(32),
	border_color varchar(32),
	border_width integer,
	opacity real,
	is_clickable numeric,
	is_highlightable numeric,
	click_action varchar(64),
	hover_action varchar(64),
	action_value text,
	action_description text,
	expected_result text,
	hint_text text,
	animation_type varchar(32),
	animation_duration integer,
	priority varchar(16),
	created_at datetime,
	updated_at datetime
)`

const reducedInterfacesDDL = `CREATE TABLE tv_interfaces (
	id char(36) PRIMARY KEY,
	is_active numeric,
	created_at datetime,
	updated_at datetime,
	device_id char(36),
	name varchar(255),
	description text,
	type varchar(16),
	screenshot_url text,
	screenshot_data text
)`

func openReducedStore(t *testing.T) (*Store, *MarkStore) {
	t.Helper()
	gdb := openTestDB(t)
	if err := gdb.AutoMigrate(&models.Device{}); err != nil {
		t.Fatalf("миграция: %v", err)
	}
	require.NoError(t, gdb.Exec(reducedInterfacesDDL).Error)
	require.NoError(t, gdb.Exec(reducedMarksDDL).Error)

	caps := db.ResolveCapabilities(gdb)
	require.False(t, caps.InterfaceClickableAreas)
	require.False(t, caps.MarkDisplayOrder)
	require.False(t, caps.MarkStepID)
	ids := &ident.Sequence{Prefix: "tv"}
	return NewStore(gdb, ids, caps), NewMarkStore(gdb, ids, caps)
}

func TestReducedSchemaInterfaces(t *testing.T) {
	s, _ := openReducedStore(t)
	seedDevice(t, s.DB(), "dev-1")

	// Области пропускаются при вставке — иначе sqlite упал бы на незнакомой колонке.
	iface, err := s.CreateInterface(&models.TVInterface{
		DeviceID:       "dev-1",
		Name:           "Экран",
		ClickableAreas: datatypes.JSON(`[{"x":1}]`),
	})
	require.NoError(t, err)

	// И при обновлении.
	got, err := s.UpdateInterface(iface.ID, map[string]any{
		"name":            "Экран 2",
		"clickable_areas": `[{"x":2}]`,
		"highlight_areas": `[]`,
	})
	require.NoError(t, err)
	require.Equal(t, "Экран 2", got.Name)

	// Список тоже собирается только из существующих колонок.
	rows, err := s.List(ListFilters{DeviceID: "dev-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Экран 2", rows[0].Name)
	require.False(t, rows[0].HasScreenshotData)
}

func TestReducedSchemaMarks(t *testing.T) {
	s, marks := openReducedStore(t)
	seedDevice(t, s.DB(), "dev-1")
	iface, err := s.CreateInterface(&models.TVInterface{DeviceID: "dev-1", Name: "Экран"})
	require.NoError(t, err)

	m1, err := marks.CreateMark(&models.TVInterfaceMark{
		TVInterfaceID: iface.ID, Name: "м1", IsClickable: true,
		MarkType: models.MarkTypeZone, // колонки нет — значение молча пропадает
	})
	require.NoError(t, err)
	_, err = marks.CreateMark(&models.TVInterfaceMark{TVInterfaceID: iface.ID, Name: "м2"})
	require.NoError(t, err)

	// Чтение собирается только из существующих колонок, сортировка по created_at.
	got, err := marks.ByInterface(iface.ID, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "м1", got[0].Name)

	require.ErrorIs(t, marks.Reorder(iface.ID, []string{m1.ID}), ErrNoDisplayOrder)

	byStep, err := marks.ByStep("step-1")
	require.NoError(t, err)
	require.Empty(t, byStep)

	st, err := marks.MarkStats(iface.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, st.Total)
	require.EqualValues(t, 1, st.Clickable)
	require.Zero(t, st.Visible, "без is_visible видимость не считается")
	require.Empty(t, st.ByType)

	got2, err := marks.GetMark(m1.ID)
	require.NoError(t, err)
	require.Equal(t, "м1", got2.Name)

	upd, err := marks.UpdateMark(m1.ID, map[string]any{
		"name":          "м1+",
		"display_order": 5, // колонки нет — должно молча выброситься
	})
	require.NoError(t, err)
	require.Equal(t, "м1+", upd.Name)
}
