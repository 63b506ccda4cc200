package devices

import (
	"antsupport/internal/ident"
	"antsupport/internal/logs"
	"antsupport/internal/models"
	"antsupport/internal/store"

	"gorm.io/gorm"
)

// Store — стор устройств: generic-база плюс табличная специфика.
type Store struct {
	*store.Base[models.Device, *models.Device]
	db *gorm.DB
}

func NewStore(db *gorm.DB, ids ident.Generator) *Store {
	return &Store{Base: store.NewBase[models.Device, *models.Device](db, ids), db: db}
}

var searchFields = []string{"name", "brand", "model", "description"}

// ListWithStats — устройства со счётчиками активных проблем и пультов.
func (s *Store) ListWithStats(opts store.ListOptions) ([]models.DeviceWithStats, error) {
	if opts.Search != "" && len(opts.SearchFields) == 0 {
		opts.SearchFields = searchFields
	}
	if opts.SortBy == "" {
		opts.SortBy = "order_index"
		opts.SortOrder = "asc"
	}
	q := s.db.Table("devices").Select(`devices.*,
		(SELECT COUNT(*) FROM problems p WHERE p.device_id = devices.id AND p.is_active = ?) AS problems_count,
		(SELECT COUNT(*) FROM remotes r WHERE r.device_id = devices.id AND r.is_active = ?) AS remotes_count`,
		true, true)
	var out []models.DeviceWithStats
	if err := opts.Apply(q).Scan(&out).Error; err != nil {
		logs.Logger.Errorf("ошибка получения устройств со статистикой: %v", err)
		return nil, err
	}
	return out, nil
}

// GetWithStats — одно устройство со счётчиками.
func (s *Store) GetWithStats(id string) (*models.DeviceWithStats, error) {
	var out models.DeviceWithStats
	err := s.db.Table("devices").Select(`devices.*,
		(SELECT COUNT(*) FROM problems p WHERE p.device_id = devices.id AND p.is_active = ?) AS problems_count,
		(SELECT COUNT(*) FROM remotes r WHERE r.device_id = devices.id AND r.is_active = ?) AS remotes_count`,
		true, true).
		Where("devices.id = ?", id).
		Take(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Search — полнотекстовый поиск (postgres, словарь russian) с LIKE-фолбэком
// на остальных диалектах.
func (s *Store) Search(query string, limit int) ([]models.Device, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.db.Dialector.Name() == "postgres" {
		var out []models.Device
		err := s.db.Raw(`SELECT * FROM devices
			WHERE is_active = true
			  AND to_tsvector('russian', coalesce(name,'') || ' ' || coalesce(brand,'') || ' ' || coalesce(model,'') || ' ' || coalesce(description,'')) @@ plainto_tsquery('russian', ?)
			ORDER BY ts_rank(to_tsvector('russian', coalesce(name,'') || ' ' || coalesce(brand,'') || ' ' || coalesce(model,'') || ' ' || coalesce(description,'')), plainto_tsquery('russian', ?)) DESC
			LIMIT ?`, query, query, limit).Scan(&out).Error
		if err != nil {
			logs.Logger.Errorf("ошибка поиска устройств: %v", err)
			return nil, err
		}
		return out, nil
	}
	t := true
	return s.FindAll(store.ListOptions{
		IsActive:     &t,
		Search:       query,
		SearchFields: searchFields,
		Limit:        limit,
	})
}

// Popular — устройства, отранжированные по сумме завершённых диагностик.
func (s *Store) Popular(limit int) ([]models.DeviceWithStats, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []models.DeviceWithStats
	err := s.db.Table("devices").Select(`devices.*,
		COUNT(p.id) AS problems_count,
		(SELECT COUNT(*) FROM remotes r WHERE r.device_id = devices.id AND r.is_active = ?) AS remotes_count`,
		true).
		Joins("LEFT JOIN problems p ON p.device_id = devices.id AND p.is_active = ?", true).
		Where("devices.is_active = ?", true).
		Group("devices.id").
		Order("COALESCE(SUM(p.completed_count), 0) DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		logs.Logger.Errorf("ошибка получения популярных устройств: %v", err)
		return nil, err
	}
	return out, nil
}

// OrderItem — новая позиция устройства в списке.
type OrderItem struct {
	ID         string `json:"id"`
	OrderIndex int    `json:"order_index"`
}

// UpdateOrder переставляет устройства одной транзакцией: частичное
// применение порядка — это дефект, а не допустимое поведение.
func (s *Store) UpdateOrder(items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			res := tx.Model(&models.Device{}).
				Where("id = ?", it.ID).
				Update("order_index", it.OrderIndex)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка изменения порядка устройств: %v", err)
	}
	return err
}

// CanDelete — мягкая проверка перед удалением: активные сессии и любые
// зависимые строки блокируют, советуем архивировать.
func (s *Store) CanDelete(id string) (models.DeleteCheck, error) {
	var n int64
	if err := s.db.Model(&models.DiagnosticSession{}).
		Where("device_id = ? AND end_time IS NULL AND is_active = ?", id, true).
		Count(&n).Error; err != nil {
		return models.DeleteCheck{}, err
	}
	if n > 0 {
		return models.NotDeletable(
			"По устройству идут активные диагностические сессии",
			"Дождитесь завершения сессий или заархивируйте устройство"), nil
	}

	if err := s.db.Model(&models.Problem{}).
		Where("device_id = ? AND status = ? AND is_active = ?", id, models.ProblemStatusPublished, true).
		Count(&n).Error; err != nil {
		return models.DeleteCheck{}, err
	}
	if n > 0 {
		return models.NotDeletable(
			"У устройства есть опубликованные проблемы",
			"Снимите проблемы с публикации или заархивируйте устройство"), nil
	}

	if err := s.db.Model(&models.Problem{}).
		Where("device_id = ? AND is_active = ?", id, true).
		Count(&n).Error; err != nil {
		return models.DeleteCheck{}, err
	}
	if n > 0 {
		return models.NotDeletable(
			"У устройства есть проблемы",
			"Удалите или перенесите проблемы, либо заархивируйте устройство"), nil
	}

	if err := s.db.Model(&models.Remote{}).
		Where("device_id = ? AND is_active = ?", id, true).
		Count(&n).Error; err != nil {
		return models.DeleteCheck{}, err
	}
	if n > 0 {
		return models.NotDeletable(
			"К устройству привязаны пульты",
			"Удалите пульты или заархивируйте устройство"), nil
	}

	return models.Deletable(), nil
}

// Stats — количество устройств по статусам.
func (s *Store) Stats() (*models.DeviceStats, error) {
	var st models.DeviceStats
	q := s.db.Model(&models.Device{}).Where("is_active = ?", true)
	if err := q.Count(&st.TotalDevices).Error; err != nil {
		return nil, err
	}
	for status, dst := range map[models.DeviceStatus]*int64{
		models.DeviceStatusActive:      &st.ActiveDevices,
		models.DeviceStatusMaintenance: &st.MaintenanceDevices,
		models.DeviceStatusInactive:    &st.InactiveDevices,
	} {
		if err := s.db.Model(&models.Device{}).
			Where("is_active = ? AND status = ?", true, status).
			Count(dst).Error; err != nil {
			return nil, err
		}
	}
	return &st, nil
}
