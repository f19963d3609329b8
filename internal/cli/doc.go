// Package cli реализует инструмент командной строки smoothie.
//
// # Обзор
//
// CLI — клиентская утилита для оператора и разработчика.
// Работает через HTTP API оркестратора и не импортирует внутренние
// пакеты системы. Исключение — отправка заказа через очередь
// (order submit --via-mq): транспорт передаётся снаружи как OrderQueue.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8083")
//	accepted, err := client.SubmitOrder("mango-banana")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: smoothie order list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - order: submit, show, list
//   - robot: list, register, set-status
//   - complete: сигнал завершения вместо робота
//
// Каждая группа создаётся через фабричную функцию (NewOrderCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
