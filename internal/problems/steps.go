package problems

import (
	"errors"
	"time"

	"antsupport/internal/ident"
	"antsupport/internal/logs"
	"antsupport/internal/models"
	"antsupport/internal/store"

	"gorm.io/gorm"
)

// nowFunc подменяется в тестах.
var nowFunc = time.Now

// StepStore — стор шагов диагностики. Держатель инварианта нумерации:
// step_number активных шагов проблемы — плотная уникальная последовательность
// 1..n после любой мутации.
type StepStore struct {
	*store.Base[models.DiagnosticStep, *models.DiagnosticStep]
	db *gorm.DB
}

func NewStepStore(db *gorm.DB, ids ident.Generator) *StepStore {
	return &StepStore{Base: store.NewBase[models.DiagnosticStep, *models.DiagnosticStep](db, ids), db: db}
}

// ByProblem — активные шаги проблемы по порядку.
func (s *StepStore) ByProblem(problemID string) ([]models.DiagnosticStep, error) {
	var out []models.DiagnosticStep
	err := s.db.Where("problem_id = ? AND is_active = ?", problemID, true).
		Order("step_number ASC").
		Find(&out).Error
	if err != nil {
		logs.Logger.Errorf("ошибка получения шагов проблемы %s: %v", problemID, err)
		return nil, err
	}
	return out, nil
}

// CreateWithAutoNumber — вставка в хвост: step_number = max+1, в транзакции.
func (s *StepStore) CreateWithAutoNumber(step *models.DiagnosticStep) (*models.DiagnosticStep, error) {
	if step.ProblemID == "" {
		return nil, errors.New("шаг должен ссылаться на проблему")
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var maxNum int
		if err := tx.Model(&models.DiagnosticStep{}).
			Where("problem_id = ?", step.ProblemID).
			Select("COALESCE(MAX(step_number), 0)").
			Scan(&maxNum).Error; err != nil {
			return err
		}
		step.StepNumber = maxNum + 1
		step.PrepareInsert(s.NewID(), nowFunc())
		return tx.Create(step).Error
	})
	if err != nil {
		logs.Logger.Errorf("ошибка создания шага: %v", err)
		return nil, err
	}
	return step, nil
}

// ReorderSteps присваивает шагам номера 1..n в заданном порядке, одной
// транзакцией; незнакомый id откатывает всё.
func (s *StepStore) ReorderSteps(problemID string, stepIDs []string) error {
	if len(stepIDs) == 0 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i, id := range stepIDs {
			res := tx.Model(&models.DiagnosticStep{}).
				Where("id = ? AND problem_id = ?", id, problemID).
				Updates(map[string]any{"step_number": i + 1, "updated_at": nowFunc()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errors.New("шаг " + id + " не принадлежит проблеме")
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка переупорядочивания шагов проблемы %s: %v", problemID, err)
	}
	return err
}

// InsertStep вставляет шаг после afterStepNumber: хвост сдвигается на +1,
// новый шаг получает номер afterStepNumber+1.
func (s *StepStore) InsertStep(problemID string, afterStepNumber int, step *models.DiagnosticStep) (*models.DiagnosticStep, error) {
	if afterStepNumber < 0 {
		afterStepNumber = 0
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.DiagnosticStep{}).
			Where("problem_id = ? AND step_number > ?", problemID, afterStepNumber).
			Updates(map[string]any{
				"step_number": gorm.Expr("step_number + 1"),
				"updated_at":  nowFunc(),
			}).Error; err != nil {
			return err
		}
		step.ProblemID = problemID
		step.StepNumber = afterStepNumber + 1
		step.PrepareInsert(s.NewID(), nowFunc())
		return tx.Create(step).Error
	})
	if err != nil {
		logs.Logger.Errorf("ошибка вставки шага в проблему %s: %v", problemID, err)
		return nil, err
	}
	return step, nil
}

// DeleteWithReorder удаляет шаг насовсем и закрывает дыру в нумерации.
func (s *StepStore) DeleteWithReorder(stepID string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var st models.DiagnosticStep
		if err := tx.Where("id = ?", stepID).First(&st).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("шаг не найден")
			}
			return err
		}
		if err := tx.Delete(&models.DiagnosticStep{}, "id = ?", stepID).Error; err != nil {
			return err
		}
		return tx.Model(&models.DiagnosticStep{}).
			Where("problem_id = ? AND step_number > ?", st.ProblemID, st.StepNumber).
			Updates(map[string]any{
				"step_number": gorm.Expr("step_number - 1"),
				"updated_at":  nowFunc(),
			}).Error
	})
	if err != nil {
		logs.Logger.Errorf("ошибка удаления шага %s: %v", stepID, err)
	}
	return err
}

// Duplicate копирует шаг (опционально в другую проблему) со свежим номером
// в хвосте целевой проблемы.
func (s *StepStore) Duplicate(stepID string, targetProblemID string) (*models.DiagnosticStep, error) {
	var cp models.DiagnosticStep
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var src models.DiagnosticStep
		if err := tx.Where("id = ?", stepID).First(&src).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("шаг не найден")
			}
			return err
		}
		cp = src
		cp.ID = s.NewID()
		if targetProblemID != "" {
			cp.ProblemID = targetProblemID
		}
		var maxNum int
		if err := tx.Model(&models.DiagnosticStep{}).
			Where("problem_id = ?", cp.ProblemID).
			Select("COALESCE(MAX(step_number), 0)").
			Scan(&maxNum).Error; err != nil {
			return err
		}
		cp.StepNumber = maxNum + 1
		cp.PrepareInsert(cp.ID, nowFunc())
		return tx.Create(&cp).Error
	})
	if err != nil {
		logs.Logger.Errorf("ошибка дублирования шага %s: %v", stepID, err)
		return nil, err
	}
	return &cp, nil
}

// ValidateStepOrder находит дубли step_number среди активных шагов проблемы.
func (s *StepStore) ValidateStepOrder(problemID string) ([]models.StepOrderIssue, error) {
	var issues []models.StepOrderIssue
	err := s.db.Raw(`SELECT problem_id, step_number, COUNT(*) AS count
		FROM diagnostic_steps
		WHERE problem_id = ? AND is_active = ?
		GROUP BY problem_id, step_number
		HAVING COUNT(*) > 1`, problemID, true).Scan(&issues).Error
	if err != nil {
		logs.Logger.Errorf("ошибка проверки нумерации шагов проблемы %s: %v", problemID, err)
		return nil, err
	}
	return issues, nil
}

// FixStepNumbering перенумеровывает активные шаги в порядке
// step_number, created_at — чинит и дубли, и дыры.
func (s *StepStore) FixStepNumbering(problemID string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var steps []models.DiagnosticStep
		if err := tx.Where("problem_id = ? AND is_active = ?", problemID, true).
			Order("step_number ASC").Order("created_at ASC").
			Find(&steps).Error; err != nil {
			return err
		}
		for i := range steps {
			if steps[i].StepNumber == i+1 {
				continue
			}
			if err := tx.Model(&models.DiagnosticStep{}).
				Where("id = ?", steps[i].ID).
				Updates(map[string]any{"step_number": i + 1, "updated_at": nowFunc()}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка починки нумерации шагов проблемы %s: %v", problemID, err)
	}
	return err
}

// NextStep / PreviousStep — соседний активный шаг той же проблемы.
func (s *StepStore) NextStep(stepID string) (*models.DiagnosticStep, error) {
	return s.adjacent(stepID, +1)
}

func (s *StepStore) PreviousStep(stepID string) (*models.DiagnosticStep, error) {
	return s.adjacent(stepID, -1)
}

func (s *StepStore) adjacent(stepID string, delta int) (*models.DiagnosticStep, error) {
	var cur models.DiagnosticStep
	if err := s.db.Where("id = ? AND is_active = ?", stepID, true).First(&cur).Error; err != nil {
		return nil, err
	}
	var next models.DiagnosticStep
	err := s.db.Where("problem_id = ? AND step_number = ? AND is_active = ?",
		cur.ProblemID, cur.StepNumber+delta, true).First(&next).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &next, nil
}

// CanDelete — шаг блокируют только активные сессии, в которых он участвует.
func (s *StepStore) CanDelete(stepID string) (models.DeleteCheck, error) {
	var n int64
	err := s.db.Model(&models.SessionStep{}).
		Joins("JOIN diagnostic_sessions ds ON ds.id = session_steps.session_id").
		Where("session_steps.step_id = ? AND ds.end_time IS NULL AND ds.is_active = ?", stepID, true).
		Count(&n).Error
	if err != nil {
		return models.DeleteCheck{}, err
	}
	if n > 0 {
		return models.NotDeletable(
			"Шаг используется в активных диагностических сессиях",
			"Дождитесь завершения сессий"), nil
	}
	return models.Deletable(), nil
}
