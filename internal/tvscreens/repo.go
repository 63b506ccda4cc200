package tvscreens

import (
	"errors"
	"strings"
	"time"

	"antsupport/internal/db"
	"antsupport/internal/ident"
	"antsupport/internal/logs"
	"antsupport/internal/models"
	"antsupport/internal/store"

	"gorm.io/gorm"
)

var (
	ErrDeviceNotFound = errors.New("устройство не найдено")
	ErrNameRequired   = errors.New("название интерфейса обязательно")
)

// nowFunc подменяется в тестах.
var nowFunc = time.Now

// Store — стор ТВ-интерфейсов. Опциональные колонки областей включаются по
// дескриптору возможностей, снятому на старте.
type Store struct {
	*store.Base[models.TVInterface, *models.TVInterface]
	db   *gorm.DB
	caps db.Capabilities
}

func NewStore(gdb *gorm.DB, ids ident.Generator, caps db.Capabilities) *Store {
	return &Store{Base: store.NewBase[models.TVInterface, *models.TVInterface](gdb, ids), db: gdb, caps: caps}
}

// omittedAreaColumns — колонки, которых нет в фактической схеме.
func (s *Store) omittedAreaColumns() []string {
	var omit []string
	if !s.caps.InterfaceClickableAreas {
		omit = append(omit, "clickable_areas")
	}
	if !s.caps.InterfaceHighlightAreas {
		omit = append(omit, "highlight_areas")
	}
	return omit
}

// CreateInterface проверяет обязательные поля и существование устройства,
// затем вставляет строку без отсутствующих в схеме колонок.
func (s *Store) CreateInterface(iface *models.TVInterface) (*models.TVInterface, error) {
	if iface.Name == "" {
		return nil, ErrNameRequired
	}
	var n int64
	if err := s.db.Model(&models.Device{}).Where("id = ?", iface.DeviceID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrDeviceNotFound
	}
	if iface.Type == "" {
		iface.Type = models.TVInterfaceCustom
	}
	if size := len(iface.ScreenshotData); size > 0 {
		logs.Logger.Infof("создание интерфейса %q: скриншот %d байт", iface.Name, size)
	}

	iface.PrepareInsert(s.NewID(), nowFunc())
	q := s.db
	if omit := s.omittedAreaColumns(); len(omit) > 0 {
		q = q.Omit(omit...)
	}
	if err := q.Create(iface).Error; err != nil {
		logs.Logger.Errorf("ошибка создания интерфейса: %v", err)
		return nil, err
	}
	return iface, nil
}

// UpdateInterface — обновление с выбрасыванием отсутствующих колонок.
func (s *Store) UpdateInterface(id string, updates map[string]any) (*models.TVInterface, error) {
	if !s.caps.InterfaceClickableAreas {
		delete(updates, "clickable_areas")
	}
	if !s.caps.InterfaceHighlightAreas {
		delete(updates, "highlight_areas")
	}
	if raw, ok := updates["screenshot_data"].(string); ok && raw != "" {
		logs.Logger.Infof("обновление интерфейса %s: скриншот %d байт", id, len(raw))
	}
	return s.UpdateByID(id, updates)
}

// ListFilters — фильтры списка интерфейсов.
type ListFilters struct {
	DeviceID string
	Type     string
	IsActive *bool
}

// listSelect — колонки облегчённой выборки. Тело скриншота подменяется
// выражением bodyExpr, так что тяжёлые байты режутся в самой базе и через
// драйвер не едут.
func (s *Store) listSelect(bodyExpr string) string {
	cols := []string{
		"id", "is_active", "created_at", "updated_at",
		"device_id", "name", "description", "type", "screenshot_url",
	}
	if s.caps.InterfaceClickableAreas {
		cols = append(cols, "clickable_areas")
	}
	if s.caps.InterfaceHighlightAreas {
		cols = append(cols, "highlight_areas")
	}
	return strings.Join(cols, ", ") + ",\n\t\t" + bodyExpr + ` AS screenshot_data,
		COALESCE(LENGTH(screenshot_data), 0) AS screenshot_data_size,
		CASE WHEN screenshot_data IS NOT NULL AND LENGTH(screenshot_data) > 0 THEN 1 ELSE 0 END AS has_screenshot_data`
}

const elideOversized = "CASE WHEN COALESCE(LENGTH(screenshot_data), 0) > ? THEN NULL ELSE screenshot_data END"

// List возвращает интерфейсы без тяжёлых скриншотов: тело больше порога
// заменяется NULL ещё в SQL, рядом кладутся размер и флаг наличия.
func (s *Store) List(f ListFilters) ([]models.TVInterfaceListItem, error) {
	q := s.db.Table("tv_interfaces").
		Select(s.listSelect(elideOversized), db.OversizedScreenshotBytes)
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	var out []models.TVInterfaceListItem
	if err := q.Order("created_at DESC").Scan(&out).Error; err != nil {
		logs.Logger.Errorf("ошибка получения списка интерфейсов: %v", err)
		return nil, err
	}
	return out, nil
}

// GetLightweight — интерфейс без тела скриншота (для редакторов списков).
func (s *Store) GetLightweight(id string) (*models.TVInterfaceListItem, error) {
	var out models.TVInterfaceListItem
	err := s.db.Table("tv_interfaces").
		Select(s.listSelect("NULL")).
		Where("id = ?", id).
		Take(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleStatus переключает is_active.
func (s *Store) ToggleStatus(id string) (*models.TVInterface, error) {
	iface, err := s.FindByID(id)
	if err != nil {
		return nil, err
	}
	return s.UpdateByID(id, map[string]any{"is_active": !iface.IsActive})
}

// DuplicateInterface копирует строку; копия всегда неактивна, чтобы не
// всплыть в мастере до ручной проверки.
func (s *Store) DuplicateInterface(id string) (*models.TVInterface, error) {
	var src models.TVInterface
	if err := s.db.Where("id = ?", id).First(&src).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("интерфейс не найден")
		}
		return nil, err
	}
	cp := src
	cp.ID = s.NewID()
	cp.Name = src.Name + " (копия)"
	cp.PrepareInsert(cp.ID, nowFunc())
	cp.IsActive = false
	q := s.db
	if omit := s.omittedAreaColumns(); len(omit) > 0 {
		q = q.Omit(omit...)
	}
	if err := q.Create(&cp).Error; err != nil {
		logs.Logger.Errorf("ошибка дублирования интерфейса %s: %v", id, err)
		return nil, err
	}
	return &cp, nil
}

// Stats — агрегаты по интерфейсам и их отметкам.
func (s *Store) Stats() (*models.TVInterfaceStats, error) {
	st := &models.TVInterfaceStats{ByType: map[string]int64{}}
	if err := s.db.Model(&models.TVInterface{}).Count(&st.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.TVInterface{}).Where("is_active = ?", true).Count(&st.Active).Error; err != nil {
		return nil, err
	}
	var rows []struct {
		Type  string
		Count int64
	}
	if err := s.db.Model(&models.TVInterface{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		st.ByType[r.Type] = r.Count
	}
	if err := s.db.Model(&models.TVInterface{}).
		Where("screenshot_data IS NOT NULL AND LENGTH(screenshot_data) > ?", db.OversizedScreenshotBytes).
		Count(&st.Oversized).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.TVInterfaceMark{}).Count(&st.TotalMarks).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.TVInterfaceMark{}).
		Distinct("tv_interface_id").
		Count(&st.WithMarks).Error; err != nil {
		return nil, err
	}
	return st, nil
}
