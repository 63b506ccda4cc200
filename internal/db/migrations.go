// internal/db/migrations.go
package db

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateStepNumberIndex — составной индекс под инвариант нумерации шагов:
// выборки и сдвиги всегда идут по (problem_id, step_number).
func MigrateStepNumberIndex(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "postgres":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_steps_problem_number ON "diagnostic_steps" ("problem_id", "step_number")`).Error
	case "mysql":
		_ = db.Exec("DROP INDEX `idx_steps_problem_number` ON `diagnostic_steps`").Error
		return db.Exec("CREATE INDEX `idx_steps_problem_number` ON `diagnostic_steps` (`problem_id`, `step_number`)").Error
	case "sqlite":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_steps_problem_number ON diagnostic_steps (problem_id, step_number)`).Error
	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// MigrateSearchIndexes — полнотекстовые индексы (только postgres; остальные
// диалекты ищут через LIKE, им индекс не нужен).
func MigrateSearchIndexes(db *gorm.DB) error {
	if db == nil || db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_devices_fts ON "devices" USING gin(to_tsvector('russian', coalesce(name,'') || ' ' || coalesce(brand,'') || ' ' || coalesce(model,'') || ' ' || coalesce(description,'')))`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_problems_fts ON "problems" USING gin(to_tsvector('russian', coalesce(title,'') || ' ' || coalesce(description,'')))`).Error
}
