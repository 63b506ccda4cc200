package sessions

import (
	"database/sql"
	"errors"
	"math"
	"time"

	"antsupport/internal/ident"
	"antsupport/internal/logs"
	"antsupport/internal/models"
	"antsupport/internal/store"

	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("сессия не найдена")
	ErrSessionFinished = errors.New("сессия уже завершена")
	ErrUnknownInterval = errors.New("неизвестная гранулярность: ожидается hour|day|week|month")
)

// nowFunc подменяется в тестах.
var nowFunc = time.Now

// Store — стор диагностических сессий. Машина состояний: активная
// (end_time IS NULL) -> завершённая (end_time, success, duration).
type Store struct {
	*store.Base[models.DiagnosticSession, *models.DiagnosticSession]
	db *gorm.DB
}

func NewStore(db *gorm.DB, ids ident.Generator) *Store {
	return &Store{Base: store.NewBase[models.DiagnosticSession, *models.DiagnosticSession](db, ids), db: db}
}

// StartSession открывает прогон: total_steps снимается с числа активных шагов
// проблемы на момент старта и дальше не пересчитывается.
func (s *Store) StartSession(deviceID, problemID, sessionKey string) (*models.DiagnosticSession, error) {
	var steps int64
	if err := s.db.Model(&models.DiagnosticStep{}).
		Where("problem_id = ? AND is_active = ?", problemID, true).
		Count(&steps).Error; err != nil {
		logs.Logger.Errorf("ошибка подсчёта шагов проблемы %s: %v", problemID, err)
		return nil, err
	}
	sess := &models.DiagnosticSession{
		DeviceID:       deviceID,
		ProblemID:      problemID,
		SessionKey:     sessionKey,
		StartTime:      nowFunc(),
		TotalSteps:     int(steps),
		CompletedSteps: 0,
	}
	return s.Create(sess)
}

// StepResult — итог одной попытки шага.
type StepResult struct {
	StepNumber  int    `json:"step_number"`
	Completed   bool   `json:"completed"`
	Result      string `json:"result"`
	TimeSpent   int    `json:"time_spent"`
	ErrorsCount int    `json:"errors_count"`
}

// UpdateProgress апсертит session_step и пересчитывает completed_steps /
// error_steps одной транзакцией.
func (s *Store) UpdateProgress(sessionID, stepID string, res StepResult) (*models.DiagnosticSession, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var sess models.DiagnosticSession
		if err := tx.Where("id = ?", sessionID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if sess.EndTime != nil {
			return ErrSessionFinished
		}

		var ss models.SessionStep
		err := tx.Where("session_id = ? AND step_id = ?", sessionID, stepID).First(&ss).Error
		switch {
		case err == nil:
			if e := tx.Model(&ss).Updates(map[string]any{
				"completed":    res.Completed,
				"result":       res.Result,
				"time_spent":   res.TimeSpent,
				"errors_count": res.ErrorsCount,
				"updated_at":   nowFunc(),
			}).Error; e != nil {
				return e
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			ss = models.SessionStep{
				SessionID:   sessionID,
				StepID:      stepID,
				StepNumber:  res.StepNumber,
				Completed:   res.Completed,
				Result:      res.Result,
				TimeSpent:   res.TimeSpent,
				ErrorsCount: res.ErrorsCount,
			}
			ss.PrepareInsert(s.NewID(), nowFunc())
			if e := tx.Create(&ss).Error; e != nil {
				return e
			}
		default:
			return err
		}

		var done, errored int64
		if e := tx.Model(&models.SessionStep{}).
			Where("session_id = ? AND completed = ?", sessionID, true).
			Count(&done).Error; e != nil {
			return e
		}
		if e := tx.Model(&models.SessionStep{}).
			Where("session_id = ? AND errors_count > 0", sessionID).
			Count(&errored).Error; e != nil {
			return e
		}
		return tx.Model(&models.DiagnosticSession{}).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"completed_steps": done,
				"error_steps":     errored,
				"updated_at":      nowFunc(),
			}).Error
	})
	if err != nil {
		logs.Logger.Errorf("ошибка обновления прогресса сессии %s: %v", sessionID, err)
		return nil, err
	}
	return s.FindByID(sessionID)
}

// CompleteSession закрывает сессию: duration = округлённые секунды между
// start_time и end_time; при success инкрементируется completed_count
// проблемы и пересчитывается её success_rate.
func (s *Store) CompleteSession(sessionID string, success bool, feedback string) (*models.DiagnosticSession, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var sess models.DiagnosticSession
		if err := tx.Where("id = ?", sessionID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if sess.EndTime != nil {
			return ErrSessionFinished
		}

		end := nowFunc()
		duration := int(math.Round(end.Sub(sess.StartTime).Seconds()))
		if err := tx.Model(&models.DiagnosticSession{}).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"end_time":   end,
				"success":    success,
				"duration":   duration,
				"feedback":   feedback,
				"updated_at": end,
			}).Error; err != nil {
			return err
		}

		if success && sess.ProblemID != "" {
			if err := tx.Model(&models.Problem{}).
				Where("id = ?", sess.ProblemID).
				Updates(map[string]any{
					"completed_count": gorm.Expr("completed_count + 1"),
					"updated_at":      end,
				}).Error; err != nil {
				return err
			}
		}
		if sess.ProblemID != "" {
			return tx.Exec(`UPDATE problems SET success_rate = COALESCE(
				(SELECT CASE WHEN COUNT(*) = 0 THEN 0
					ELSE ROUND(100.0 * SUM(CASE WHEN success THEN 1 ELSE 0 END) / COUNT(*))
				END
				FROM diagnostic_sessions ds
				WHERE ds.problem_id = problems.id AND ds.end_time IS NOT NULL), 0)
				WHERE id = ?`, sess.ProblemID).Error
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка завершения сессии %s: %v", sessionID, err)
		return nil, err
	}
	return s.FindByID(sessionID)
}

// SessionSteps — результаты шагов сессии по порядку.
func (s *Store) SessionSteps(sessionID string) ([]models.SessionStep, error) {
	var out []models.SessionStep
	err := s.db.Where("session_id = ?", sessionID).
		Order("step_number ASC").Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// CleanupReport — итог фонового свипа.
type CleanupReport struct {
	Abandoned int64 `json:"abandoned"`
	Purged    int64 `json:"purged"`
}

// CleanupOldSessions: активные сессии старше abandonAfter закрываются как
// брошенные (success=false), завершённые старше retention удаляются насовсем
// вместе со своими session_steps.
func (s *Store) CleanupOldSessions(abandonAfter, retention time.Duration) (*CleanupReport, error) {
	rep := &CleanupReport{}
	now := nowFunc()

	var stale []models.DiagnosticSession
	if err := s.db.Where("end_time IS NULL AND start_time < ?", now.Add(-abandonAfter)).
		Find(&stale).Error; err != nil {
		return nil, err
	}
	for _, sess := range stale {
		duration := int(math.Round(now.Sub(sess.StartTime).Seconds()))
		if err := s.db.Model(&models.DiagnosticSession{}).
			Where("id = ?", sess.ID).
			Updates(map[string]any{
				"end_time":   now,
				"success":    false,
				"duration":   duration,
				"feedback":   "abandoned",
				"updated_at": now,
			}).Error; err != nil {
			logs.Logger.Errorf("ошибка закрытия брошенной сессии %s: %v", sess.ID, err)
			continue
		}
		rep.Abandoned++
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		cutoff := now.Add(-retention)
		var old []models.DiagnosticSession
		if err := tx.Select("id").
			Where("end_time IS NOT NULL AND end_time < ?", cutoff).
			Find(&old).Error; err != nil {
			return err
		}
		if len(old) == 0 {
			return nil
		}
		ids := make([]string, 0, len(old))
		for _, o := range old {
			ids = append(ids, o.ID)
		}
		if err := tx.Where("session_id IN ?", ids).Delete(&models.SessionStep{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.DiagnosticSession{})
		rep.Purged = res.RowsAffected
		return res.Error
	})
	if err != nil {
		logs.Logger.Errorf("ошибка очистки старых сессий: %v", err)
		return nil, err
	}
	return rep, nil
}

// Stats — сводка по сессиям за период (границы опциональны).
func (s *Store) Stats(from, to *time.Time) (*models.SessionStats, error) {
	q := func() *gorm.DB {
		q := s.db.Model(&models.DiagnosticSession{})
		if from != nil {
			q = q.Where("start_time >= ?", *from)
		}
		if to != nil {
			q = q.Where("start_time <= ?", *to)
		}
		return q
	}
	var st models.SessionStats
	if err := q().Count(&st.TotalSessions).Error; err != nil {
		return nil, err
	}
	if err := q().Where("end_time IS NULL").Count(&st.ActiveSessions).Error; err != nil {
		return nil, err
	}
	if err := q().Where("end_time IS NOT NULL").Count(&st.CompletedSessions).Error; err != nil {
		return nil, err
	}
	if err := q().Where("success = ?", true).Count(&st.SuccessfulSessions).Error; err != nil {
		return nil, err
	}
	if st.CompletedSessions > 0 {
		st.SuccessRate = 100 * float64(st.SuccessfulSessions) / float64(st.CompletedSessions)
		var avg sql.NullFloat64
		if err := q().Where("end_time IS NOT NULL").
			Select("AVG(duration)").Scan(&avg).Error; err != nil {
			return nil, err
		}
		if avg.Valid {
			st.AvgDuration = avg.Float64
		}
	}
	return &st, nil
}

// PopularProblems — проблемы по числу сессий.
func (s *Store) PopularProblems(limit int) ([]models.PopularProblem, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []models.PopularProblem
	err := s.db.Table("diagnostic_sessions ds").
		Select(`ds.problem_id,
			p.title,
			d.name AS device_name,
			COUNT(*) AS sessions_count,
			CASE WHEN SUM(CASE WHEN ds.end_time IS NOT NULL THEN 1 ELSE 0 END) = 0 THEN 0
				ELSE 100.0 * SUM(CASE WHEN ds.success THEN 1 ELSE 0 END) / SUM(CASE WHEN ds.end_time IS NOT NULL THEN 1 ELSE 0 END)
			END AS success_rate`).
		Joins("JOIN problems p ON p.id = ds.problem_id").
		Joins("LEFT JOIN devices d ON d.id = ds.device_id").
		Group("ds.problem_id, p.title, d.name").
		Order("sessions_count DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		logs.Logger.Errorf("ошибка получения популярных проблем: %v", err)
		return nil, err
	}
	return out, nil
}

// bucketExpr — SQL-выражение ключа группировки по времени старта для
// конкретного диалекта. Гранулярность: hour|day|week|month.
func bucketExpr(dialect, granularity string) (string, error) {
	switch dialect {
	case "postgres":
		switch granularity {
		case "hour", "day", "week", "month":
			return "date_trunc('" + granularity + "', start_time)", nil
		}
	case "mysql":
		switch granularity {
		case "hour":
			return "DATE_FORMAT(start_time, '%Y-%m-%d %H:00')", nil
		case "day":
			return "DATE_FORMAT(start_time, '%Y-%m-%d')", nil
		case "week":
			return "DATE_FORMAT(start_time, '%Y-%u')", nil
		case "month":
			return "DATE_FORMAT(start_time, '%Y-%m')", nil
		}
	default:
		// sqlite
		switch granularity {
		case "hour":
			return "strftime('%Y-%m-%d %H:00', start_time)", nil
		case "day":
			return "strftime('%Y-%m-%d', start_time)", nil
		case "week":
			return "strftime('%Y-%W', start_time)", nil
		case "month":
			return "strftime('%Y-%m', start_time)", nil
		}
	}
	return "", ErrUnknownInterval
}

// TimeAnalytics — сессии, сгруппированные по времени старта.
func (s *Store) TimeAnalytics(granularity string, from, to *time.Time) ([]models.TimeBucket, error) {
	expr, err := bucketExpr(s.db.Dialector.Name(), granularity)
	if err != nil {
		return nil, err
	}
	q := s.db.Table("diagnostic_sessions").
		Select(expr + ` AS bucket,
			COUNT(*) AS total,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS succeeded`).
		Group("bucket").
		Order("bucket ASC")
	if from != nil {
		q = q.Where("start_time >= ?", *from)
	}
	if to != nil {
		q = q.Where("start_time <= ?", *to)
	}
	var out []models.TimeBucket
	if err := q.Scan(&out).Error; err != nil {
		logs.Logger.Errorf("ошибка временной аналитики сессий: %v", err)
		return nil, err
	}
	return out, nil
}
