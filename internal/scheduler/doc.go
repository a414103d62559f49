// Package scheduler — периодическая отправка task'ов по расписаниям.
//
// Scheduler опрашивает таблицу schedules, отправляет task'и due
// расписаний через Enqueuer и передвигает next_due_at по cron-выражению
// либо фиксированному интервалу.
//
// Дубликаты подавляются на стороне enqueue: идентификатор task
// детерминированно выводится из пары (schedule ID, next_due_at),
// поэтому несколько экземпляров scheduler'а могут работать
// одновременно без внешней координации.
package scheduler
