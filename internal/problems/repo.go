package problems

import (
	"errors"

	"antsupport/internal/ident"
	"antsupport/internal/logs"
	"antsupport/internal/models"
	"antsupport/internal/store"

	"gorm.io/gorm"
)

// ErrPublishWithoutSteps — публикация требует хотя бы одного активного шага.
var ErrPublishWithoutSteps = errors.New("невозможно опубликовать проблему без диагностических шагов")

// Store — стор проблем: generic-база плюс выборки с деталями, дублирование
// и жизненный цикл публикации.
type Store struct {
	*store.Base[models.Problem, *models.Problem]
	db    *gorm.DB
	steps *StepStore
}

func NewStore(db *gorm.DB, ids ident.Generator) *Store {
	return &Store{
		Base:  store.NewBase[models.Problem, *models.Problem](db, ids),
		db:    db,
		steps: NewStepStore(db, ids),
	}
}

// Steps — стор шагов этого же пакета.
func (s *Store) Steps() *StepStore { return s.steps }

// Filters — фильтры списка проблем.
type Filters struct {
	DeviceID string
	Category string
	Status   string
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

const detailsSelect = `problems.*,
	d.name AS device_name,
	(SELECT COUNT(*) FROM diagnostic_steps st WHERE st.problem_id = problems.id AND st.is_active = ?) AS steps_count,
	(SELECT COUNT(*) FROM diagnostic_sessions ds WHERE ds.problem_id = problems.id) AS sessions_count`

// ListWithDetails — проблемы с именем устройства и счётчиками шагов/сессий.
// WHERE собирается динамически из фильтров.
func (s *Store) ListWithDetails(f Filters) ([]models.ProblemWithDetails, error) {
	q := s.db.Table("problems").
		Select(detailsSelect, true).
		Joins("LEFT JOIN devices d ON d.id = problems.device_id")
	if f.DeviceID != "" {
		q = q.Where("problems.device_id = ?", f.DeviceID)
	}
	if f.Category != "" {
		q = q.Where("problems.category = ?", f.Category)
	}
	if f.Status != "" {
		q = q.Where("problems.status = ?", f.Status)
	}
	if f.IsActive != nil {
		q = q.Where("problems.is_active = ?", *f.IsActive)
	}
	if f.Search != "" {
		if s.db.Dialector.Name() == "postgres" {
			q = q.Where("problems.title ILIKE ? OR problems.description ILIKE ?",
				"%"+f.Search+"%", "%"+f.Search+"%")
		} else {
			q = q.Where("LOWER(problems.title) LIKE LOWER(?) OR LOWER(problems.description) LIKE LOWER(?)",
				"%"+f.Search+"%", "%"+f.Search+"%")
		}
	}
	q = q.Order("problems.priority DESC").Order("problems.created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
		if f.Offset > 0 {
			q = q.Offset(f.Offset)
		}
	}
	var out []models.ProblemWithDetails
	if err := q.Scan(&out).Error; err != nil {
		logs.Logger.Errorf("ошибка получения проблем с деталями: %v", err)
		return nil, err
	}
	return out, nil
}

// GetWithDetails — одна проблема с деталями.
func (s *Store) GetWithDetails(id string) (*models.ProblemWithDetails, error) {
	var out models.ProblemWithDetails
	err := s.db.Table("problems").
		Select(detailsSelect, true).
		Joins("LEFT JOIN devices d ON d.id = problems.device_id").
		Where("problems.id = ?", id).
		Take(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Search — полнотекстовый поиск по title/description с ранжированием.
func (s *Store) Search(query string, limit int) ([]models.Problem, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.db.Dialector.Name() == "postgres" {
		var out []models.Problem
		err := s.db.Raw(`SELECT * FROM problems
			WHERE is_active = true
			  AND to_tsvector('russian', coalesce(title,'') || ' ' || coalesce(description,'')) @@ plainto_tsquery('russian', ?)
			ORDER BY ts_rank(to_tsvector('russian', coalesce(title,'') || ' ' || coalesce(description,'')), plainto_tsquery('russian', ?)) DESC
			LIMIT ?`, query, query, limit).Scan(&out).Error
		if err != nil {
			logs.Logger.Errorf("ошибка поиска проблем: %v", err)
			return nil, err
		}
		return out, nil
	}
	t := true
	return s.FindAll(store.ListOptions{
		IsActive:     &t,
		Search:       query,
		SearchFields: []string{"title", "description"},
		Limit:        limit,
	})
}

// Popular — опубликованные проблемы по числу завершённых диагностик.
func (s *Store) Popular(limit int) ([]models.ProblemWithDetails, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []models.ProblemWithDetails
	err := s.db.Table("problems").
		Select(detailsSelect, true).
		Joins("LEFT JOIN devices d ON d.id = problems.device_id").
		Where("problems.is_active = ? AND problems.status = ?", true, models.ProblemStatusPublished).
		Order("problems.completed_count DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		logs.Logger.Errorf("ошибка получения популярных проблем: %v", err)
		return nil, err
	}
	return out, nil
}

// ByCategory / ByDevice — сахар поверх ListWithDetails.
func (s *Store) ByCategory(category string) ([]models.ProblemWithDetails, error) {
	t := true
	return s.ListWithDetails(Filters{Category: category, IsActive: &t})
}

func (s *Store) ByDevice(deviceID string) ([]models.ProblemWithDetails, error) {
	t := true
	return s.ListWithDetails(Filters{DeviceID: deviceID, IsActive: &t})
}

// Duplicate — глубокая копия проблемы и всех её шагов одной транзакцией.
// Копия получает статус draft и обнулённую статистику; каждому шагу — свежий
// id и problem_id копии, step_number сохраняется.
func (s *Store) Duplicate(problemID string, targetDeviceID string) (*models.Problem, error) {
	var cp models.Problem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var src models.Problem
		if err := tx.Where("id = ?", problemID).First(&src).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("проблема не найдена")
			}
			return err
		}

		cp = src
		cp.ID = s.NewID()
		cp.Title = src.Title + " (копия)"
		cp.Status = models.ProblemStatusDraft
		cp.CompletedCount = 0
		cp.SuccessRate = 0
		if targetDeviceID != "" {
			cp.DeviceID = targetDeviceID
		}
		cp.PrepareInsert(cp.ID, nowFunc())
		if err := tx.Create(&cp).Error; err != nil {
			return err
		}

		var steps []models.DiagnosticStep
		if err := tx.Where("problem_id = ?", problemID).
			Order("step_number ASC").
			Find(&steps).Error; err != nil {
			return err
		}
		for i := range steps {
			st := steps[i]
			st.ID = s.NewID()
			st.ProblemID = cp.ID
			st.DeviceID = cp.DeviceID
			st.PrepareInsert(st.ID, nowFunc())
			st.IsActive = steps[i].IsActive
			if err := tx.Create(&st).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка дублирования проблемы %s: %v", problemID, err)
		return nil, err
	}
	return &cp, nil
}

// UpdateStats пересчитывает success_rate по завершённым сессиям.
func (s *Store) UpdateStats(problemID string) error {
	err := s.db.Exec(`UPDATE problems SET success_rate = COALESCE(
		(SELECT CASE WHEN COUNT(*) = 0 THEN 0
			ELSE ROUND(100.0 * SUM(CASE WHEN success THEN 1 ELSE 0 END) / COUNT(*))
		END
		FROM diagnostic_sessions ds
		WHERE ds.problem_id = problems.id AND ds.end_time IS NOT NULL), 0),
		updated_at = ?
		WHERE id = ?`, nowFunc(), problemID).Error
	if err != nil {
		logs.Logger.Errorf("ошибка пересчёта статистики проблемы %s: %v", problemID, err)
	}
	return err
}

// CanDelete — блокируем удаление при активных сессиях или наличии шагов.
func (s *Store) CanDelete(id string) (models.DeleteCheck, error) {
	var n int64
	if err := s.db.Model(&models.DiagnosticSession{}).
		Where("problem_id = ? AND end_time IS NULL AND is_active = ?", id, true).
		Count(&n).Error; err != nil {
		return models.DeleteCheck{}, err
	}
	if n > 0 {
		return models.NotDeletable(
			"По проблеме идут активные диагностические сессии",
			"Дождитесь завершения сессий или заархивируйте проблему"), nil
	}
	if err := s.db.Model(&models.DiagnosticStep{}).
		Where("problem_id = ? AND is_active = ?", id, true).
		Count(&n).Error; err != nil {
		return models.DeleteCheck{}, err
	}
	if n > 0 {
		return models.NotDeletable(
			"У проблемы есть диагностические шаги",
			"Удалите шаги или заархивируйте проблему"), nil
	}
	return models.Deletable(), nil
}

// Publish переводит проблему в published; без активных шагов — ошибка.
func (s *Store) Publish(id string) (*models.Problem, error) {
	var n int64
	if err := s.db.Model(&models.DiagnosticStep{}).
		Where("problem_id = ? AND is_active = ?", id, true).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrPublishWithoutSteps
	}
	return s.UpdateByID(id, map[string]any{"status": models.ProblemStatusPublished})
}

func (s *Store) Unpublish(id string) (*models.Problem, error) {
	return s.UpdateByID(id, map[string]any{"status": models.ProblemStatusDraft})
}
