// Package worker выполняет task'и из очереди брокера.
//
// # Обзор
//
// Worker — потребляющая сторона системы: получает task'и из одной
// очереди, находит handler по имени и выполняет его, персистя каждый
// переход статуса в result store. Worker отвечает за:
//
//   - Получение task'ов из очереди (prefetch = concurrency)
//   - Выполнение handler'ов с ограничением параллелизма
//   - Retry с экспоненциальным backoff при ошибках handler'а
//   - Подтверждение доставки только после завершения (ack-late)
//   - Ответы на управляющие сообщения (ping, stats, shutdown)
//
// Workers масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди.
//
// # Жизненный цикл task
//
//  1. Доставка из очереди (или повторная доставка после потери воркера)
//  2. Ожидание ETA, если task отложен
//  3. Сверка с result store: REVOKED и финальные статусы не выполняются
//  4. MarkStarted (attempt=1) → вызов handler'а
//  5. Успех → MarkSuccess, ack
//  6. Ошибка → MarkRetry, backoff, новая попытка; после maxRetries
//     повторных попыток → MarkFailure, ack
//
// # Retry
//
// Retry выполняется in-process, а не через requeue в брокере: это даёт
// точный контроль над backoff и подсчётом попыток.
//
// Задержка растёт экспоненциально: base * 2^(attempt-1), с верхней
// границей 60 секунд. Jitter отключён — последовательность задержек
// детерминирована.
//
// # Ошибки
//
// Пакет различает два уровня ошибок:
//   - Ошибки handler'а — содержатся внутри retry-политики и становятся
//     видимыми только как терминальный FAILURE
//   - Инфраструктурные (result store недоступен) — доставка
//     возвращается в очередь и будет обработана позже
//
// # Управляющие сообщения
//
// Каждый воркер слушает fanout-обменник управляющих сообщений через
// собственную эксклюзивную очередь. shutdown, адресованный identity
// воркера, останавливает только его; broadcast останавливает всех.
package worker
