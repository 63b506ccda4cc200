package tvscreens

import (
	"errors"

	"antsupport/internal/db"
	"antsupport/internal/ident"
	"antsupport/internal/logs"
	"antsupport/internal/models"
	"antsupport/internal/store"

	"gorm.io/gorm"
)

// ErrNoDisplayOrder — схема без колонки display_order не умеет порядок отметок.
var ErrNoDisplayOrder = errors.New("схема не поддерживает порядок отметок")

// MarkStore — стор отметок. Таблица исторически могла не получить часть
// миграций, поэтому каждый запрос собирается из фактически существующих
// колонок (дескриптор снят один раз на старте).
type MarkStore struct {
	*store.Base[models.TVInterfaceMark, *models.TVInterfaceMark]
	db   *gorm.DB
	caps db.Capabilities
}

func NewMarkStore(gdb *gorm.DB, ids ident.Generator, caps db.Capabilities) *MarkStore {
	return &MarkStore{Base: store.NewBase[models.TVInterfaceMark, *models.TVInterfaceMark](gdb, ids), db: gdb, caps: caps}
}

// baseColumns — колонки, которые есть всегда.
var baseColumns = []string{
	"id", "tv_interface_id", "name", "description",
	"position", "coordinates",
	"color", "background_color", "border_color", "border_width", "opacity",
	"is_clickable", "is_highlightable",
	"click_action", "hover_action", "action_value", "action_description",
	"expected_result", "hint_text",
	"animation_type", "animation_duration", "priority",
	"created_at", "updated_at",
}

func (s *MarkStore) presentColumns() []string {
	cols := append([]string{}, baseColumns...)
	if s.caps.MarkType {
		cols = append(cols, "mark_type")
	}
	if s.caps.MarkShape {
		cols = append(cols, "shape")
	}
	if s.caps.MarkSize {
		cols = append(cols, "size")
	}
	if s.caps.MarkIsActive {
		cols = append(cols, "is_active")
	}
	if s.caps.MarkIsVisible {
		cols = append(cols, "is_visible")
	}
	if s.caps.MarkDisplayOrder {
		cols = append(cols, "display_order")
	}
	if s.caps.MarkMetadata {
		cols = append(cols, "metadata")
	}
	if s.caps.MarkTags {
		cols = append(cols, "tags")
	}
	if s.caps.MarkStepID {
		cols = append(cols, "step_id")
	}
	return cols
}

func (s *MarkStore) absentColumns() []string {
	var omit []string
	for col, ok := range map[string]bool{
		"mark_type":     s.caps.MarkType,
		"shape":         s.caps.MarkShape,
		"size":          s.caps.MarkSize,
		"is_active":     s.caps.MarkIsActive,
		"is_visible":    s.caps.MarkIsVisible,
		"display_order": s.caps.MarkDisplayOrder,
		"metadata":      s.caps.MarkMetadata,
		"tags":          s.caps.MarkTags,
		"step_id":       s.caps.MarkStepID,
	} {
		if !ok {
			omit = append(omit, col)
		}
	}
	return omit
}

// CreateMark вставляет отметку, пропуская отсутствующие колонки; position и
// size при пустом значении получают дефолты редактора.
func (s *MarkStore) CreateMark(m *models.TVInterfaceMark) (*models.TVInterfaceMark, error) {
	if m.TVInterfaceID == "" {
		return nil, errors.New("отметка должна ссылаться на интерфейс")
	}
	if len(m.Position) == 0 {
		m.Position = models.EncodeJSON(map[string]any{"x": 0, "y": 0})
	}
	if len(m.Size) == 0 {
		m.Size = models.EncodeJSON(models.MarkSize{Width: 20, Height: 20})
	}
	if m.MarkType == "" {
		m.MarkType = models.MarkTypePoint
	}
	if m.Shape == "" {
		m.Shape = models.MarkShapeCircle
	}
	m.PrepareInsert(s.NewID(), nowFunc())
	q := s.db
	if omit := s.absentColumns(); len(omit) > 0 {
		q = q.Omit(omit...)
	}
	if err := q.Create(m).Error; err != nil {
		logs.Logger.Errorf("ошибка создания отметки: %v", err)
		return nil, err
	}
	return m, nil
}

// UpdateMark — обновление без отсутствующих колонок.
func (s *MarkStore) UpdateMark(id string, updates map[string]any) (*models.TVInterfaceMark, error) {
	for _, col := range s.absentColumns() {
		delete(updates, col)
	}
	var probe models.TVInterfaceMark
	res := s.db.Model(&probe).Where("id = ?", id).Updates(sanitize(updates))
	if res.Error != nil {
		logs.Logger.Errorf("ошибка обновления отметки %s: %v", id, res.Error)
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return s.getPresent(id)
}

func sanitize(updates map[string]any) map[string]any {
	out := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		if k == "id" || k == "created_at" {
			continue
		}
		out[k] = v
	}
	out["updated_at"] = nowFunc()
	return out
}

func (s *MarkStore) getPresent(id string) (*models.TVInterfaceMark, error) {
	var m models.TVInterfaceMark
	err := s.db.Select(s.presentColumns()).Where("id = ?", id).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMark — отметка по id в рамках существующих колонок.
func (s *MarkStore) GetMark(id string) (*models.TVInterfaceMark, error) {
	return s.getPresent(id)
}

// ByInterface — отметки интерфейса; сортировка по display_order, если колонка
// есть, иначе по created_at.
func (s *MarkStore) ByInterface(ifaceID string, onlyVisible bool) ([]models.TVInterfaceMark, error) {
	q := s.db.Select(s.presentColumns()).Where("tv_interface_id = ?", ifaceID)
	if s.caps.MarkIsActive {
		q = q.Where("is_active = ?", true)
	}
	if onlyVisible && s.caps.MarkIsVisible {
		q = q.Where("is_visible = ?", true)
	}
	if s.caps.MarkDisplayOrder {
		q = q.Order("display_order ASC")
	} else {
		q = q.Order("created_at ASC")
	}
	var out []models.TVInterfaceMark
	if err := q.Find(&out).Error; err != nil {
		logs.Logger.Errorf("ошибка получения отметок интерфейса %s: %v", ifaceID, err)
		return nil, err
	}
	return out, nil
}

// ByStep — отметки шага диагностики; без колонки step_id — пусто.
func (s *MarkStore) ByStep(stepID string) ([]models.TVInterfaceMark, error) {
	if !s.caps.MarkStepID {
		return []models.TVInterfaceMark{}, nil
	}
	q := s.db.Select(s.presentColumns()).Where("step_id = ?", stepID)
	if s.caps.MarkIsActive {
		q = q.Where("is_active = ?", true)
	}
	var out []models.TVInterfaceMark
	if err := q.Find(&out).Error; err != nil {
		logs.Logger.Errorf("ошибка получения отметок шага %s: %v", stepID, err)
		return nil, err
	}
	return out, nil
}

// Reorder переписывает display_order последовательно, одной транзакцией:
// частично применённый порядок — дефект, а не допустимый исход.
func (s *MarkStore) Reorder(ifaceID string, markIDs []string) error {
	if !s.caps.MarkDisplayOrder {
		return ErrNoDisplayOrder
	}
	if len(markIDs) == 0 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i, id := range markIDs {
			res := tx.Model(&models.TVInterfaceMark{}).
				Where("id = ? AND tv_interface_id = ?", id, ifaceID).
				Updates(map[string]any{"display_order": i + 1, "updated_at": nowFunc()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errors.New("отметка " + id + " не принадлежит интерфейсу")
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка переупорядочивания отметок интерфейса %s: %v", ifaceID, err)
	}
	return err
}

// MarkStats собирает агрегацию из существующих колонок.
func (s *MarkStore) MarkStats(ifaceID string) (*models.MarkStats, error) {
	st := &models.MarkStats{ByType: map[string]int64{}, ByShape: map[string]int64{}}
	base := func() *gorm.DB {
		q := s.db.Model(&models.TVInterfaceMark{}).Where("tv_interface_id = ?", ifaceID)
		if s.caps.MarkIsActive {
			q = q.Where("is_active = ?", true)
		}
		return q
	}
	if err := base().Count(&st.Total).Error; err != nil {
		return nil, err
	}
	if s.caps.MarkIsVisible {
		if err := base().Where("is_visible = ?", true).Count(&st.Visible).Error; err != nil {
			return nil, err
		}
	}
	if err := base().Where("is_clickable = ?", true).Count(&st.Clickable).Error; err != nil {
		return nil, err
	}
	if s.caps.MarkType {
		var rows []struct {
			MarkType string
			Count    int64
		}
		if err := base().Select("mark_type, COUNT(*) AS count").Group("mark_type").Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			st.ByType[r.MarkType] = r.Count
		}
	}
	if s.caps.MarkShape {
		var rows []struct {
			Shape string
			Count int64
		}
		if err := base().Select("shape, COUNT(*) AS count").Group("shape").Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			st.ByShape[r.Shape] = r.Count
		}
	}
	return st, nil
}
