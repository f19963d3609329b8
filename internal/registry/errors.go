package registry

import "errors"

// Ошибки реестра.
var (
	// ErrNoWorkerAvailable — нет ни одного робота в статусе AVAILABLE.
	ErrNoWorkerAvailable = errors.New("no worker available")

	// ErrUnknownWorker — робот с таким именем не зарегистрирован.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrWorkerExists — робот уже зарегистрирован.
	ErrWorkerExists = errors.New("worker already exists")

	// ErrInvalidWorkerName — имя не подходит для routing key.
	ErrInvalidWorkerName = errors.New("invalid worker name")

	// ErrInvalidStatus — неизвестный статус.
	ErrInvalidStatus = errors.New("invalid worker status")
)
