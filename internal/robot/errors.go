package robot

import "errors"

// Ошибки симулятора.
var (
	// ErrBlendFailed — робот не смог приготовить смузи.
	ErrBlendFailed = errors.New("blend failed")

	// ErrNoRobots — симулятору не передано ни одного имени.
	ErrNoRobots = errors.New("no robot names configured")
)
