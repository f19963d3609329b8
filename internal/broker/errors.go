package broker

import "errors"

var (
	// ErrClosed — broker закрыт, регистрация невозможна.
	ErrClosed = errors.New("continuation broker closed")

	// ErrDeadlinePassed — дедлайн в прошлом.
	ErrDeadlinePassed = errors.New("deadline already passed")

	// ErrTokenGeneration — не удалось получить уникальный токен.
	ErrTokenGeneration = errors.New("token generation failed")
)
