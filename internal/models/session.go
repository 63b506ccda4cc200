package models

import "time"

// DiagnosticSession — один прогон мастера диагностики конечным пользователем.
// Активна, пока end_time IS NULL; завершение фиксирует success и duration.
type DiagnosticSession struct {
	Base
	DeviceID       string     `gorm:"column:device_id;type:char(36);index" json:"device_id"`
	ProblemID      string     `gorm:"column:problem_id;type:char(36);index" json:"problem_id"`
	SessionKey     string     `gorm:"column:session_key;type:varchar(64);index" json:"session_key"`
	StartTime      time.Time  `gorm:"column:start_time" json:"start_time"`
	EndTime        *time.Time `gorm:"column:end_time;index" json:"end_time"`
	CompletedSteps int        `gorm:"column:completed_steps;default:0" json:"completed_steps"`
	TotalSteps     int        `gorm:"column:total_steps;default:0" json:"total_steps"`
	Success        bool       `gorm:"default:false" json:"success"`
	Duration       int        `gorm:"default:0" json:"duration"`
	Feedback       string     `gorm:"type:text" json:"feedback"`
	ErrorSteps     int        `gorm:"column:error_steps;default:0" json:"error_steps"`
}

// SessionStep — результат одной попытки шага внутри сессии.
type SessionStep struct {
	Base
	SessionID   string `gorm:"column:session_id;type:char(36);index;not null" json:"session_id"`
	StepID      string `gorm:"column:step_id;type:char(36);index;not null" json:"step_id"`
	StepNumber  int    `gorm:"column:step_number" json:"step_number"`
	Completed   bool   `gorm:"default:false" json:"completed"`
	Result      string `gorm:"type:text" json:"result"`
	TimeSpent   int    `gorm:"column:time_spent;default:0" json:"time_spent"`
	ErrorsCount int    `gorm:"column:errors_count;default:0" json:"errors_count"`
}

// SessionStats — сводка по сессиям за период.
type SessionStats struct {
	TotalSessions      int64   `json:"total_sessions"`
	ActiveSessions     int64   `json:"active_sessions"`
	CompletedSessions  int64   `json:"completed_sessions"`
	SuccessfulSessions int64   `json:"successful_sessions"`
	SuccessRate        float64 `json:"success_rate"`
	AvgDuration        float64 `json:"avg_duration"`
}

// PopularProblem — проблема, отранжированная по числу сессий.
type PopularProblem struct {
	ProblemID     string  `gorm:"column:problem_id" json:"problem_id"`
	Title         string  `json:"title"`
	DeviceName    string  `gorm:"column:device_name" json:"device_name"`
	SessionsCount int64   `gorm:"column:sessions_count" json:"sessions_count"`
	SuccessRate   float64 `gorm:"column:success_rate" json:"success_rate"`
}

// TimeBucket — точка временной аналитики (час/день/неделя/месяц).
// Ключ строковый: формат зависит от диалекта (date_trunc либо strftime).
type TimeBucket struct {
	Bucket    string `json:"bucket"`
	Total     int64  `json:"total"`
	Succeeded int64  `json:"succeeded"`
}
