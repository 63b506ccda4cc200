package sessions

import (
	"testing"
	"time"

	"antsupport/internal/ident"
	"antsupport/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:sessions_"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("открытие sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.Device{},
		&models.Problem{},
		&models.DiagnosticStep{},
		&models.DiagnosticSession{},
		&models.SessionStep{},
	)
	if err != nil {
		t.Fatalf("миграция: %v", err)
	}
	return NewStore(db, &ident.Sequence{Prefix: "s"})
}

// setNow фиксирует часы стора и возвращает функцию сдвига.
func setNow(t *testing.T, start time.Time) func(d time.Duration) {
	t.Helper()
	cur := start
	nowFunc = func() time.Time { return cur }
	t.Cleanup(func() { nowFunc = time.Now })
	return func(d time.Duration) { cur = cur.Add(d) }
}

func seedProblem(t *testing.T, s *Store, stepCount int) *models.Problem {
	t.Helper()
	d := &models.Device{Name: "STB", Status: models.DeviceStatusActive}
	d.PrepareInsert(s.NewID(), nowFunc())
	require.NoError(t, s.DB().Create(d).Error)

	p := &models.Problem{DeviceID: d.ID, Title: "Нет сигнала", Status: models.ProblemStatusPublished}
	p.PrepareInsert(s.NewID(), nowFunc())
	require.NoError(t, s.DB().Create(p).Error)

	for i := 1; i <= stepCount; i++ {
		st := &models.DiagnosticStep{ProblemID: p.ID, DeviceID: d.ID, StepNumber: i, Title: "шаг"}
		st.PrepareInsert(s.NewID(), nowFunc())
		require.NoError(t, s.DB().Create(st).Error)
	}
	return p
}

func seedStep(t *testing.T, s *Store, p *models.Problem, num int) *models.DiagnosticStep {
	t.Helper()
	st := &models.DiagnosticStep{ProblemID: p.ID, DeviceID: p.DeviceID, StepNumber: num, Title: "шаг"}
	st.PrepareInsert(s.NewID(), nowFunc())
	require.NoError(t, s.DB().Create(st).Error)
	return st
}

func TestStartSessionSnapshotsTotalSteps(t *testing.T) {
	s := openTestStore(t)
	setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 3)

	sess, err := s.StartSession(p.DeviceID, p.ID, "key-1")
	require.NoError(t, err)
	require.Equal(t, 3, sess.TotalSteps)
	require.Zero(t, sess.CompletedSteps)
	require.Nil(t, sess.EndTime)

	// Шаг, добавленный после старта, снимок не меняет.
	seedStep(t, s, p, 4)
	got, err := s.FindByID(sess.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.TotalSteps)
}

func TestUpdateProgressUpserts(t *testing.T) {
	s := openTestStore(t)
	setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 2)
	sess, err := s.StartSession(p.DeviceID, p.ID, "key-1")
	require.NoError(t, err)
	steps, err := s.SessionSteps(sess.ID)
	require.NoError(t, err)
	require.Empty(t, steps)

	var stepIDs []string
	require.NoError(t, s.DB().Model(&models.DiagnosticStep{}).
		Where("problem_id = ?", p.ID).Order("step_number ASC").Pluck("id", &stepIDs).Error)

	got, err := s.UpdateProgress(sess.ID, stepIDs[0], StepResult{StepNumber: 1, Completed: true, TimeSpent: 30})
	require.NoError(t, err)
	require.Equal(t, 1, got.CompletedSteps)

	// Повторная отметка того же шага — апсерт, а не вторая строка.
	got, err = s.UpdateProgress(sess.ID, stepIDs[0], StepResult{StepNumber: 1, Completed: false, ErrorsCount: 2})
	require.NoError(t, err)
	require.Zero(t, got.CompletedSteps)

	steps, err = s.SessionSteps(sess.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, 2, steps[0].ErrorsCount)

	got, err = s.UpdateProgress(sess.ID, stepIDs[1], StepResult{StepNumber: 2, Completed: true})
	require.NoError(t, err)
	require.Equal(t, 1, got.CompletedSteps)
	require.Equal(t, 1, got.ErrorSteps, "один шаг с ошибками")

	// Ошибки сняты — счётчик проблемных шагов пересчитывается в ноль.
	got, err = s.UpdateProgress(sess.ID, stepIDs[0], StepResult{StepNumber: 1, Completed: true, ErrorsCount: 0})
	require.NoError(t, err)
	require.Equal(t, 2, got.CompletedSteps)
	require.Zero(t, got.ErrorSteps)

	_, err = s.UpdateProgress("missing", stepIDs[0], StepResult{})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompleteSessionSuccess(t *testing.T) {
	s := openTestStore(t)
	tick := setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 1)

	sess, err := s.StartSession(p.DeviceID, p.ID, "key-1")
	require.NoError(t, err)

	tick(125 * time.Second)
	got, err := s.CompleteSession(sess.ID, true, "помогло")
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
	require.True(t, got.Success)
	require.Equal(t, 125, got.Duration)
	require.Equal(t, "помогло", got.Feedback)

	var prob models.Problem
	require.NoError(t, s.DB().Where("id = ?", p.ID).First(&prob).Error)
	require.Equal(t, 1, prob.CompletedCount)
	require.EqualValues(t, 100, prob.SuccessRate)

	_, err = s.CompleteSession(sess.ID, true, "")
	require.ErrorIs(t, err, ErrSessionFinished)
	_, err = s.CompleteSession("missing", true, "")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompleteSessionFailureRecomputesRate(t *testing.T) {
	s := openTestStore(t)
	setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 1)

	ok, err := s.StartSession(p.DeviceID, p.ID, "k1")
	require.NoError(t, err)
	fail, err := s.StartSession(p.DeviceID, p.ID, "k2")
	require.NoError(t, err)

	_, err = s.CompleteSession(ok.ID, true, "")
	require.NoError(t, err)
	_, err = s.CompleteSession(fail.ID, false, "не помогло")
	require.NoError(t, err)

	var prob models.Problem
	require.NoError(t, s.DB().Where("id = ?", p.ID).First(&prob).Error)
	require.Equal(t, 1, prob.CompletedCount, "неуспех счётчик не трогает")
	require.EqualValues(t, 50, prob.SuccessRate)
}

func TestCleanupOldSessions(t *testing.T) {
	s := openTestStore(t)
	tick := setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 1)

	// Очень старая завершённая сессия с шагом — под вычистку.
	ancient, err := s.StartSession(p.DeviceID, p.ID, "ancient")
	require.NoError(t, err)
	var stepIDs []string
	require.NoError(t, s.DB().Model(&models.DiagnosticStep{}).
		Where("problem_id = ?", p.ID).Limit(1).Pluck("id", &stepIDs).Error)
	_, err = s.UpdateProgress(ancient.ID, stepIDs[0], StepResult{StepNumber: 1, Completed: true})
	require.NoError(t, err)
	_, err = s.CompleteSession(ancient.ID, true, "")
	require.NoError(t, err)

	// Спустя 100 дней — брошенная активная и свежая активная.
	tick(100 * 24 * time.Hour)
	stale, err := s.StartSession(p.DeviceID, p.ID, "stale")
	require.NoError(t, err)
	tick(48 * time.Hour)
	fresh, err := s.StartSession(p.DeviceID, p.ID, "fresh")
	require.NoError(t, err)

	rep, err := s.CleanupOldSessions(24*time.Hour, 90*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, rep.Abandoned)
	require.EqualValues(t, 1, rep.Purged)

	_, err = s.FindByID(ancient.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var orphans int64
	require.NoError(t, s.DB().Model(&models.SessionStep{}).
		Where("session_id = ?", ancient.ID).Count(&orphans).Error)
	require.Zero(t, orphans, "шаги вычищенной сессии не должны осиротеть")

	got, err := s.FindByID(stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
	require.False(t, got.Success)
	require.Equal(t, "abandoned", got.Feedback)

	got, err = s.FindByID(fresh.ID)
	require.NoError(t, err)
	require.Nil(t, got.EndTime)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	tick := setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 1)

	a, _ := s.StartSession(p.DeviceID, p.ID, "a")
	b, _ := s.StartSession(p.DeviceID, p.ID, "b")
	_, _ = s.StartSession(p.DeviceID, p.ID, "c")

	tick(100 * time.Second)
	_, err := s.CompleteSession(a.ID, true, "")
	require.NoError(t, err)
	tick(100 * time.Second)
	_, err = s.CompleteSession(b.ID, false, "")
	require.NoError(t, err)

	st, err := s.Stats(nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, st.TotalSessions)
	require.EqualValues(t, 1, st.ActiveSessions)
	require.EqualValues(t, 2, st.CompletedSessions)
	require.EqualValues(t, 1, st.SuccessfulSessions)
	require.EqualValues(t, 50, st.SuccessRate)
	require.EqualValues(t, 150, st.AvgDuration) // (100+200)/2

	future := nowFunc().Add(time.Hour)
	st, err = s.Stats(&future, nil)
	require.NoError(t, err)
	require.Zero(t, st.TotalSessions)
}

func TestPopularProblems(t *testing.T) {
	s := openTestStore(t)
	setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 1)
	p2 := seedProblem(t, s, 1)

	for i := 0; i < 3; i++ {
		sess, err := s.StartSession(p.DeviceID, p.ID, "k")
		require.NoError(t, err)
		_, err = s.CompleteSession(sess.ID, i < 2, "")
		require.NoError(t, err)
	}
	_, err := s.StartSession(p2.DeviceID, p2.ID, "k")
	require.NoError(t, err)

	out, err := s.PopularProblems(10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, p.ID, out[0].ProblemID)
	require.EqualValues(t, 3, out[0].SessionsCount)
	require.InDelta(t, 66.7, out[0].SuccessRate, 0.1)
	require.Zero(t, out[1].SuccessRate, "без завершённых сессий рейтинг нулевой")
}

func TestTimeAnalytics(t *testing.T) {
	s := openTestStore(t)
	tick := setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := seedProblem(t, s, 1)

	sess, err := s.StartSession(p.DeviceID, p.ID, "a")
	require.NoError(t, err)
	_, err = s.CompleteSession(sess.ID, true, "")
	require.NoError(t, err)
	tick(24 * time.Hour)
	_, err = s.StartSession(p.DeviceID, p.ID, "b")
	require.NoError(t, err)

	buckets, err := s.TimeAnalytics("day", nil, nil)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	require.EqualValues(t, 1, buckets[0].Total)
	require.EqualValues(t, 1, buckets[0].Succeeded)
	require.EqualValues(t, 1, buckets[1].Total)
	require.EqualValues(t, 0, buckets[1].Succeeded)

	_, err = s.TimeAnalytics("decade", nil, nil)
	require.ErrorIs(t, err, ErrUnknownInterval)
}

func TestBucketExprPerDialect(t *testing.T) {
	cases := []struct {
		dialect, granularity, want string
	}{
		{"postgres", "hour", "date_trunc('hour', start_time)"},
		{"postgres", "month", "date_trunc('month', start_time)"},
		{"mysql", "hour", "DATE_FORMAT(start_time, '%Y-%m-%d %H:00')"},
		{"mysql", "day", "DATE_FORMAT(start_time, '%Y-%m-%d')"},
		{"mysql", "week", "DATE_FORMAT(start_time, '%Y-%u')"},
		{"mysql", "month", "DATE_FORMAT(start_time, '%Y-%m')"},
		{"sqlite", "day", "strftime('%Y-%m-%d', start_time)"},
		{"sqlite", "week", "strftime('%Y-%W', start_time)"},
	}
	for _, c := range cases {
		got, err := bucketExpr(c.dialect, c.granularity)
		require.NoError(t, err, "%s/%s", c.dialect, c.granularity)
		require.Equal(t, c.want, got)
	}

	for _, dialect := range []string{"postgres", "mysql", "sqlite"} {
		_, err := bucketExpr(dialect, "decade")
		require.ErrorIs(t, err, ErrUnknownInterval, dialect)
	}
}
