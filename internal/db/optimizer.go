package db

import (
	"antsupport/internal/logs"

	"gorm.io/gorm"
)

// OversizedScreenshotBytes — порог, выше которого скриншот считается
// "тяжёлым" и в списках не отдаётся телом.
const OversizedScreenshotBytes = 2 * 1024 * 1024

// OptimizerReport — итог одного прогона обслуживания.
type OptimizerReport struct {
	IndexesCreated       []string `json:"indexes_created"`
	LegacyIndexDropped   bool     `json:"legacy_index_dropped"`
	Analyzed             bool     `json:"analyzed"`
	TableSize            string   `json:"table_size,omitempty"`
	IndexSize            string   `json:"index_size,omitempty"`
	OversizedScreenshots int64    `json:"oversized_screenshots"`
}

// Optimizer — разовое обслуживание таблиц tv_interfaces/tv_interface_marks.
// Идемпотентно, не на пути запроса; безопасно гонять повторно.
type Optimizer struct{ db *gorm.DB }

func NewOptimizer(db *gorm.DB) *Optimizer { return &Optimizer{db: db} }

func (o *Optimizer) Run() (*OptimizerReport, error) {
	rep := &OptimizerReport{}
	if o.db == nil {
		return rep, nil
	}
	dialect := o.db.Dialector.Name()

	// Индексы. На postgres — CONCURRENTLY, чтобы не держать таблицу.
	type idx struct{ name, stmt string }
	var indexes []idx
	switch dialect {
	case "postgres":
		indexes = []idx{
			{"idx_tvi_device_type", `CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tvi_device_type ON "tv_interfaces" ("device_id", "type")`},
			{"idx_tvi_active", `CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tvi_active ON "tv_interfaces" ("device_id") WHERE is_active = true`},
			{"idx_marks_iface_order", `CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_marks_iface_order ON "tv_interface_marks" ("tv_interface_id", "display_order")`},
		}
	default:
		indexes = []idx{
			{"idx_tvi_device_type", `CREATE INDEX IF NOT EXISTS idx_tvi_device_type ON tv_interfaces (device_id, type)`},
			{"idx_marks_iface_order", `CREATE INDEX IF NOT EXISTS idx_marks_iface_order ON tv_interface_marks (tv_interface_id, display_order)`},
		}
	}
	for _, ix := range indexes {
		if err := o.db.Exec(ix.stmt).Error; err != nil {
			logs.Logger.Warnf("оптимизатор: индекс %s не создан: %v", ix.name, err)
			continue
		}
		rep.IndexesCreated = append(rep.IndexesCreated, ix.name)
	}

	// Старый одиночный индекс по device_id вытеснен составным.
	if dialect == "postgres" {
		if err := o.db.Exec(`DROP INDEX CONCURRENTLY IF EXISTS idx_tv_interfaces_device_id`).Error; err == nil {
			rep.LegacyIndexDropped = true
		}
	}

	switch dialect {
	case "postgres":
		if err := o.db.Exec(`ANALYZE "tv_interfaces"`).Error; err == nil {
			rep.Analyzed = true
		}
		var sizes struct {
			TableSize string
			IndexSize string
		}
		if err := o.db.Raw(`SELECT pg_size_pretty(pg_table_size('tv_interfaces')) AS table_size,
			pg_size_pretty(pg_indexes_size('tv_interfaces')) AS index_size`).Scan(&sizes).Error; err == nil {
			rep.TableSize = sizes.TableSize
			rep.IndexSize = sizes.IndexSize
		}
	case "sqlite":
		if err := o.db.Exec(`ANALYZE`).Error; err == nil {
			rep.Analyzed = true
		}
	case "mysql":
		if err := o.db.Exec("ANALYZE TABLE `tv_interfaces`").Error; err == nil {
			rep.Analyzed = true
		}
	}

	if err := o.db.Raw(`SELECT COUNT(*) FROM tv_interfaces WHERE screenshot_data IS NOT NULL AND LENGTH(screenshot_data) > ?`, OversizedScreenshotBytes).
		Scan(&rep.OversizedScreenshots).Error; err != nil {
		logs.Logger.Warnf("оптимизатор: подсчёт тяжёлых скриншотов: %v", err)
	}
	return rep, nil
}
