package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"antsupport/internal/ident"
	"antsupport/internal/logs"

	"gorm.io/gorm"
)

// row — контракт строки таблицы: указатель на модель с общими колонками.
type row[T any] interface {
	*T
	PrepareInsert(id string, now time.Time)
	RowID() string
}

// Base — обобщённый стор для таблицы с колонками id/is_active/created_at/
// updated_at. Табличная специфика (поиск, статистика, дублирование) живёт в
// сторах сущностей, которые композируют Base, а не наследуют его.
type Base[T any, P row[T]] struct {
	db  *gorm.DB
	ids ident.Generator
}

func NewBase[T any, P row[T]](db *gorm.DB, ids ident.Generator) *Base[T, P] {
	if ids == nil {
		ids = ident.NewUUID()
	}
	return &Base[T, P]{db: db, ids: ids}
}

// DB — прямой доступ для табличных запросов в сторах сущностей.
func (s *Base[T, P]) DB() *gorm.DB { return s.db }

// NewID — генератор id, общий для стора и его расширений.
func (s *Base[T, P]) NewID() string { return s.ids.NewID() }

// ListOptions — фильтры/сортировка/пагинация выборок.
type ListOptions struct {
	ID            string
	IsActive      *bool
	Status        string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Search        string
	SearchFields  []string
	SortBy        string
	SortOrder     string // asc|desc
	Limit         int
	Offset        int
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Apply навешивает опции на запрос. Offset учитывается только вместе с Limit.
func (o ListOptions) Apply(q *gorm.DB) *gorm.DB {
	dialect := q.Dialector.Name()
	if o.ID != "" {
		q = q.Where("id = ?", o.ID)
	}
	if o.IsActive != nil {
		q = q.Where("is_active = ?", *o.IsActive)
	}
	if o.Status != "" {
		q = q.Where("status = ?", o.Status)
	}
	if o.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *o.CreatedAfter)
	}
	if o.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *o.CreatedBefore)
	}
	if o.Search != "" && len(o.SearchFields) > 0 {
		var parts []string
		var args []any
		for _, f := range o.SearchFields {
			if !identRe.MatchString(f) {
				continue
			}
			if dialect == "postgres" {
				parts = append(parts, f+" ILIKE ?")
			} else {
				parts = append(parts, "LOWER("+f+") LIKE LOWER(?)")
			}
			args = append(args, "%"+o.Search+"%")
		}
		if len(parts) > 0 {
			q = q.Where(strings.Join(parts, " OR "), args...)
		}
	}

	sortBy := o.SortBy
	if sortBy == "" || !identRe.MatchString(sortBy) {
		sortBy = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(o.SortOrder, "asc") {
		order = "ASC"
	}
	q = q.Order(sortBy + " " + order)

	if o.Limit > 0 {
		q = q.Limit(o.Limit)
		if o.Offset > 0 {
			q = q.Offset(o.Offset)
		}
	}
	return q
}

// Create вставляет запись, проставив id/таймстемпы/is_active=true.
func (s *Base[T, P]) Create(rec P) (P, error) {
	rec.PrepareInsert(s.ids.NewID(), time.Now())
	if err := s.db.Create(rec).Error; err != nil {
		logs.Logger.Errorf("ошибка создания записи: %v", err)
		return nil, err
	}
	return rec, nil
}

// FindByID возвращает запись по id; gorm.ErrRecordNotFound, если её нет.
func (s *Base[T, P]) FindByID(id string) (P, error) {
	var rec T
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logs.Logger.Errorf("ошибка поиска записи %s: %v", id, err)
		}
		return nil, err
	}
	return P(&rec), nil
}

// FindAll — выборка по опциям.
func (s *Base[T, P]) FindAll(opts ListOptions) ([]T, error) {
	var out []T
	var probe T
	if err := opts.Apply(s.db.Model(&probe)).Find(&out).Error; err != nil {
		logs.Logger.Errorf("ошибка выборки записей: %v", err)
		return nil, err
	}
	return out, nil
}

// FindOne — первая запись по опциям (limit 1) или nil.
func (s *Base[T, P]) FindOne(opts ListOptions) (P, error) {
	opts.Limit = 1
	opts.Offset = 0
	rows, err := s.FindAll(opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return P(&rows[0]), nil
}

// sanitizeUpdates убирает неизменяемые колонки и обновляет updated_at.
func sanitizeUpdates(updates map[string]any) map[string]any {
	out := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		if k == "id" || k == "created_at" {
			continue
		}
		out[k] = v
	}
	out["updated_at"] = time.Now()
	return out
}

// UpdateByID применяет изменения и возвращает свежую запись.
func (s *Base[T, P]) UpdateByID(id string, updates map[string]any) (P, error) {
	var probe T
	res := s.db.Model(&probe).Where("id = ?", id).Updates(sanitizeUpdates(updates))
	if res.Error != nil {
		logs.Logger.Errorf("ошибка обновления записи %s: %v", id, res.Error)
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return s.FindByID(id)
}

// SoftDelete помечает запись неактивной (восстановима через Restore).
func (s *Base[T, P]) SoftDelete(id string) error {
	_, err := s.UpdateByID(id, map[string]any{"is_active": false})
	return err
}

// Restore возвращает мягко удалённую запись.
func (s *Base[T, P]) Restore(id string) error {
	_, err := s.UpdateByID(id, map[string]any{"is_active": true})
	return err
}

// Delete — настоящий DELETE, без возврата.
func (s *Base[T, P]) Delete(id string) error {
	var probe T
	res := s.db.Where("id = ?", id).Delete(&probe)
	if res.Error != nil {
		logs.Logger.Errorf("ошибка удаления записи %s: %v", id, res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Exists — есть ли запись с таким id (независимо от is_active).
func (s *Base[T, P]) Exists(id string) (bool, error) {
	var n int64
	var probe T
	if err := s.db.Model(&probe).Where("id = ?", id).Count(&n).Error; err != nil {
		logs.Logger.Errorf("ошибка проверки записи %s: %v", id, err)
		return false, err
	}
	return n > 0, nil
}

// CountOptions — фильтры подсчёта.
type CountOptions struct {
	IsActive *bool
	Status   string
}

func (s *Base[T, P]) Count(opts CountOptions) (int64, error) {
	var n int64
	var probe T
	q := s.db.Model(&probe)
	if opts.IsActive != nil {
		q = q.Where("is_active = ?", *opts.IsActive)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if err := q.Count(&n).Error; err != nil {
		logs.Logger.Errorf("ошибка подсчёта записей: %v", err)
		return 0, err
	}
	return n, nil
}

// Active — все активные записи.
func (s *Base[T, P]) Active() ([]T, error) {
	t := true
	return s.FindAll(ListOptions{IsActive: &t})
}

// Archived — все мягко удалённые записи.
func (s *Base[T, P]) Archived() ([]T, error) {
	f := false
	return s.FindAll(ListOptions{IsActive: &f})
}

// BulkCreate вставляет пачку в одной транзакции: или все, или никого.
func (s *Base[T, P]) BulkCreate(recs []P) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, rec := range recs {
			rec.PrepareInsert(s.ids.NewID(), now)
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка массового создания: %v", err)
	}
	return err
}

// BulkItem — одно изменение в массовом обновлении.
type BulkItem struct {
	ID      string
	Updates map[string]any
}

// BulkUpdate применяет изменения в одной транзакции; несуществующий id
// откатывает всю пачку.
func (s *Base[T, P]) BulkUpdate(items []BulkItem) error {
	if len(items) == 0 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var probe T
		for _, it := range items {
			res := tx.Model(&probe).Where("id = ?", it.ID).Updates(sanitizeUpdates(it.Updates))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("запись %s не найдена", it.ID)
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("ошибка массового обновления: %v", err)
	}
	return err
}
