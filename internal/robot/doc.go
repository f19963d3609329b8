// Package robot реализует симулятор роботов-блендеров.
//
// Simulator заменяет настоящий парк в разработке и тестах: для каждого
// имени он объявляет очередь robot.<name>.orders, привязанную к
// routing key robots.<name>.order, и отвечает на команды так же,
// как ответил бы робот.
//
// # Протокол
//
// Команда (exchange smoothie.robots, routing key robots.<name>.order):
//
//	{"order_id": "…", "smoothie": "mango-banana", "task_token": "…"}
//
// Сигнал завершения (routing key robots.<name>.success):
//
//	{"task_token": "…", "success": true, "info": "mango-banana ready"}
//
// Робот обязан вернуть task_token без изменений.
//
// # Режимы
//
//   - MakeTime — сколько робот «готовит» смузи (default: 3s)
//   - FailRate — доля заказов, на которые робот отвечает success=false
//   - Silent   — робот принимает команды и никогда не отвечает
//     (проверка пути таймаута оркестратора)
//
// Очередь робота auto-delete: пока симулятор не подключён, команда
// для этого робота не маршрутизируется и оркестратор получает ошибку
// доставки.
package robot
