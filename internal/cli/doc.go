// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI работает с брокером и result store напрямую через тот же
// taskproc.Adapter, что и сервисы: отдельного API-сервера у Conveyor
// нет. Подключения создаются лениво, поэтому команды расписаний не
// трогают брокер, а команды task'ов не создают лишний пул.
//
// # Ключевые компоненты
//
// ## Runtime
//
// Разделяемое состояние команд: флаги подключения плюс лениво
// создаваемые Adapter и ScheduleRepo.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json-encoder с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor task status ID --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - task: enqueue, status, cancel
//   - worker: health, stats, shutdown
//   - schedule: add, list, show, enable, disable, delete
//
// Каждая группа создаётся фабричной функцией (NewTaskCmd и т.д.),
// принимающей Runtime и outputFn — замыкание для создания Output
// после парсинга PersistentFlags.
package cli
