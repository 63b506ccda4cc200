package models

type ProblemCategory string

const (
	ProblemCategoryCritical ProblemCategory = "critical"
	ProblemCategoryModerate ProblemCategory = "moderate"
	ProblemCategoryMinor    ProblemCategory = "minor"
	ProblemCategoryOther    ProblemCategory = "other"
)

type ProblemStatus string

const (
	ProblemStatusDraft     ProblemStatus = "draft"
	ProblemStatusPublished ProblemStatus = "published"
)

// Problem — проблема устройства, с которой начинается диагностика.
// Владеет шагами; на неё ссылаются диагностические сессии.
type Problem struct {
	Base
	DeviceID       string          `gorm:"column:device_id;type:char(36);index;not null" json:"device_id"`
	Title          string          `gorm:"type:varchar(255);not null" json:"title"`
	Description    string          `gorm:"type:text" json:"description"`
	Category       ProblemCategory `gorm:"type:varchar(16);default:'other';index" json:"category"`
	Icon           string          `gorm:"type:varchar(64)" json:"icon"`
	Color          string          `gorm:"type:varchar(32)" json:"color"`
	Status         ProblemStatus   `gorm:"type:varchar(16);default:'draft';index" json:"status"`
	CompletedCount int             `gorm:"column:completed_count;default:0" json:"completed_count"`
	SuccessRate    float64         `gorm:"column:success_rate;default:0" json:"success_rate"`
	EstimatedTime  int             `gorm:"column:estimated_time;default:5" json:"estimated_time"`
	Priority       int             `gorm:"default:1" json:"priority"`
}

// ProblemWithDetails — строка списка проблем с именем устройства и счётчиками.
type ProblemWithDetails struct {
	Problem
	DeviceName    string `gorm:"column:device_name" json:"device_name"`
	StepsCount    int    `gorm:"column:steps_count" json:"steps_count"`
	SessionsCount int    `gorm:"column:sessions_count" json:"sessions_count"`
}

type StepActionType string

const (
	StepActionButtonPress StepActionType = "button_press"
	StepActionNavigation  StepActionType = "navigation"
	StepActionCheck       StepActionType = "check"
	StepActionWait        StepActionType = "wait"
	StepActionCustom      StepActionType = "custom"
)

// DiagnosticStep — шаг диагностики. Инвариант: step_number образует плотную
// уникальную последовательность 1..n в рамках problem_id после любой мутации.
type DiagnosticStep struct {
	Base
	ProblemID             string         `gorm:"column:problem_id;type:char(36);index;not null" json:"problem_id"`
	DeviceID              string         `gorm:"column:device_id;type:char(36);index" json:"device_id"`
	StepNumber            int            `gorm:"column:step_number;index;not null" json:"step_number"`
	Title                 string         `gorm:"type:varchar(255);not null" json:"title"`
	Description           string         `gorm:"type:text" json:"description"`
	Instruction           string         `gorm:"type:text" json:"instruction"`
	Hint                  string         `gorm:"type:text" json:"hint"`
	ActionType            StepActionType `gorm:"column:action_type;type:varchar(32)" json:"action_type"`
	HighlightRemoteButton string         `gorm:"column:highlight_remote_button;type:varchar(64)" json:"highlight_remote_button"`
	HighlightTVArea       string         `gorm:"column:highlight_tv_area;type:varchar(64)" json:"highlight_tv_area"`
	RemoteID              string         `gorm:"column:remote_id;type:char(36);index" json:"remote_id"`
	TVInterfaceID         string         `gorm:"column:tv_interface_id;type:char(36);index" json:"tv_interface_id"`
}

// StepOrderIssue — найденный дефект нумерации шагов проблемы.
type StepOrderIssue struct {
	ProblemID  string `json:"problem_id"`
	StepNumber int    `json:"step_number"`
	Count      int    `json:"count"`
}
