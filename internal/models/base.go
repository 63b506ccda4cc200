package models

import "time"

// Base — общие колонки всех таблиц: строковый id, таймстемпы, мягкое удаление
// через is_active (запись восстановима; жёсткое удаление — настоящий DELETE).
type Base struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	IsActive  bool      `gorm:"column:is_active;default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) RowID() string { return b.ID }

// PrepareInsert проставляет id (если не задан), таймстемпы и is_active=true
// перед вставкой. Аналог общей подготовки данных в сторах.
func (b *Base) PrepareInsert(id string, now time.Time) {
	if b.ID == "" {
		b.ID = id
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	b.IsActive = true
}

// DeleteCheck — мягкий ответ "можно ли удалять": вместо ошибки возвращаем
// причину и подсказку, чтобы фронт показал человеку, что делать.
type DeleteCheck struct {
	CanDelete  bool   `json:"canDelete"`
	Reason     string `json:"reason,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func Deletable() DeleteCheck { return DeleteCheck{CanDelete: true} }

func NotDeletable(reason, suggestion string) DeleteCheck {
	return DeleteCheck{CanDelete: false, Reason: reason, Suggestion: suggestion}
}
