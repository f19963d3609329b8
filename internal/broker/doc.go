// Package broker связывает непрозрачный токен с приостановленным workflow.
//
// Workflow регистрирует continuation перед отправкой команды роботу
// и ждёт на ней. Continuation потребляется ровно один раз:
//   - Resolve с результатом от робота
//   - истечение дедлайна (Outcome.TimedOut)
//   - Cancel, если команду отправить не удалось (workflow не будится)
//
// Повторные и запоздавшие Resolve молча игнорируются.
package broker
