package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время отправки для schedule.
//
// Для cron-расписаний учитывается timezone schedule; для интервалов
// просто добавляется IntervalSec. Результат всегда в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		// Невалидный timezone — fallback на UTC
		loc = time.UTC
	}

	fromInTz := from.In(loc)

	if sched.IsCron() {
		return calculateNextCron(sched.CronExpr, fromInTz)
	}

	if sched.IsInterval() {
		return fromInTz.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	// Ни cron, ни interval — schedule некорректный
	return time.Time{}, fmt.Errorf("schedule has neither cron_expr nor interval_sec")
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	return schedule.Next(from).UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// CalculateInitialNextDue вычисляет первое время отправки для нового
// schedule. Используется при создании schedule через CLI.
func CalculateInitialNextDue(sched *domain.Schedule) (time.Time, error) {
	return CalculateNextDue(sched, time.Now())
}
