// Package telemetry — структурное логирование и метрики.
//
// Логирование строится на log/slog: SetupLogger настраивает глобальный
// логгер по переменным LOG_LEVEL и LOG_FORMAT, компоненты получают
// логгер через свои Config-структуры.
//
// Метрики — prometheus-счётчики выполнения task'ов; каждый бинарник
// отдаёт их на /metrics через promhttp.
package telemetry
