// Package repo — доступ к result store (PostgreSQL).
//
// ResultRepo хранит наблюдаемое состояние task'ов: каждый переход
// статуса персистится сразу, запрос статуса всегда читает базу.
// ScheduleRepo хранит периодические расписания для beat-процесса.
//
// Локального состояния нет: все durable-данные живут в базе, и любой
// экземпляр сервиса видит одно и то же.
package repo
