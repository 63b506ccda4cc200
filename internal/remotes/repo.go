package remotes

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

// Store — стор пультов. Инвариант "ровно один default на устройство"
// поддерживается оппортунистически при create и жёстко — в SetAsDefault.
type Store struct {
	*store.Base[models.Remote, *models.Remote]
	db *gorm.DB
}

func NewStore(db *gorm.DB, ids ident.Generator) *Store {
	return &Store{Base: store.NewBase[models.Remote, *models.Remote](db, ids), db: db}
}

// CreateRemote — как Create, но первый пульт устройства автоматически
// становится дефолтным (универсальных это не касается).
func (s *Store) CreateRemote(r *models.Remote) (*models.Remote, error) {
	if r.DeviceID != "" && r.DeviceID != models.UniversalDeviceID && !r.IsDefault {
		var n int64
		if err := s.db.Model(&models.Remote{}).
			Where("device_id = ? AND is_active = ?", r.DeviceID, true).
			Count(&n).Error; err != nil {
			logs.Logger.Errorf("ошибка подсчёта пультов устройства %s: %v", r.DeviceID, err)
			return nil, err
		}
		if n == 0 {
			r.IsDefault = true
		}
	}
	return s.Create(r)
}

// DefaultForDevice — дефолтный пульт устройства. Если явного дефолта нет,
// берётся самый используемый и выбор фиксируется в БД (чтение с побочным
// эффектом — так исторически работают вызывающие).
func (s *Store) DefaultForDevice(deviceID string) (*models.Remote, error) {
	var r models.Remote
	err := s.db.Where("device_id = ? AND is_default = ? AND is_active = ?", deviceID, true, true).
		First(&r).Error
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = s.db.Where("device_id = ? AND is_active = ?", deviceID, true).
		Order("usage_count DESC").Order("created_at ASC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	if e := s.db.Model(&models.Remote{}).
		Where("id = ?", r.ID).
		Updates(map[string]any{"is_default": true, "updated_at": nowFunc()}).Error; e != nil {
		logs.Logger.Warnf("не удалось зафиксировать дефолтный пульт %s: %v", r.ID, e)
	} else {
		r.IsDefault = true
	}
	return &r, nil
}

// SetAsDefault — единственное место с настоящей взаимной исключительностью:
// транзакцией снимаем default со всех пультов устройства и ставим одному.
func (s *Store) SetAsDefault(remoteID, deviceID string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Remote{}).
			Where("device_id = ?", deviceID).
			Updates(map[string]any{"is_default": false, "updated_at": nowFunc()}).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Remote{}).
			Where("id = ? AND device_id = ?", remoteID, deviceID).
			Updates(map[string]any{"is_default": true, "updated_at": nowFunc()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("пульт не найден")
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка назначения дефолтного пульта %s: %v", remoteID, err)
	}
	return err
}

// IncrementUsage — счётчик использований плюс отметка времени.
func (s *Store) IncrementUsage(remoteID string) error {
	now := nowFunc()
	res := s.db.Model(&models.Remote{}).
		Where("id = ?", remoteID).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"last_used":   now,
			"updated_at":  now,
		})
	if res.Error != nil {
		logs.Logger.Errorf("ошибка инкремента использования пульта %s: %v", remoteID, res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Duplicate копирует пульт, сбрасывая default, счётчики и таймстемпы.
func (s *Store) Duplicate(remoteID string) (*models.Remote, error) {
	var src models.Remote
	if err := s.db.Where("id = ?", remoteID).First(&src).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("пульт не найден")
		}
		return nil, err
	}
	cp := src
	cp.ID = ""
	cp.Name = src.Name + " (копия)"
	cp.IsDefault = false
	cp.UsageCount = 0
	cp.LastUsed = nil
	return s.Create(&cp)
}

// ByDevice — пульты устройства вместе с универсальными.
func (s *Store) ByDevice(deviceID string) ([]models.Remote, error) {
	var out []models.Remote
	err := s.db.Where("is_active = ? AND (device_id = ? OR device_id = ?)",
		true, deviceID, models.UniversalDeviceID).
		Order("is_default DESC").Order("usage_count DESC").
		Find(&out).Error
	if err != nil {
		logs.Logger.Errorf("ошибка получения пультов устройства %s: %v", deviceID, err)
		return nil, err
	}
	return out, nil
}

// Search — по имени/производителю/модели.
func (s *Store) Search(query string, limit int) ([]models.Remote, error) {
	if limit <= 0 {
		limit = 20
	}
	t := true
	return s.FindAll(store.ListOptions{
		IsActive:     &t,
		Search:       query,
		SearchFields: []string{"name", "manufacturer", "model", "description"},
		Limit:        limit,
	})
}

// UsageStats — пульты по убыванию использования.
func (s *Store) UsageStats(limit int) ([]models.RemoteUsage, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.RemoteUsage
	err := s.db.Model(&models.Remote{}).
		Select("id, name, device_id, usage_count, last_used").
		Where("is_active = ?", true).
		Order("usage_count DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		logs.Logger.Errorf("ошибка статистики использования пультов: %v", err)
		return nil, err
	}
	return out, nil
}

// FormatResponse разбирает JSON-колонки пульта в готовые структуры.
// Терпимо и к строковым, и к уже разобранным значениям; повторное применение
// безопасно.
func FormatResponse(r models.Remote) models.RemoteView {
	return models.RemoteView{
		Remote:           r,
		DimensionsParsed: models.DecodeObject(r.Dimensions),
		ButtonsParsed:    models.DecodeArray(r.Buttons),
		ZonesParsed:      models.DecodeArray(r.Zones),
		MetadataParsed:   models.DecodeObject(r.Metadata),
	}
}
