package robot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shaiso/smoothie-dispatch/internal/mq"
)

const defaultMakeTime = 3 * time.Second

// Maker — то, что робот делает по команде.
//
// Возвращённая строка уходит в info сигнала завершения.
// Ошибка превращается в success=false; ошибка ctx — в отсутствие ответа.
type Maker interface {
	Make(ctx context.Context, robot string, cmd mq.CommandPayload) (string, error)
}

// BlenderMaker ждёт MakeTime и с вероятностью FailRate сообщает о неудаче.
type BlenderMaker struct {
	MakeTime time.Duration
	FailRate float64

	// roll возвращает число из [0, 1). nil — math/rand.
	roll func() float64
}

// Make готовит смузи.
func (m *BlenderMaker) Make(ctx context.Context, robot string, cmd mq.CommandPayload) (string, error) {
	makeTime := m.MakeTime
	if makeTime <= 0 {
		makeTime = defaultMakeTime
	}

	// Context-aware ожидание
	select {
	case <-time.After(makeTime):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	roll := m.roll
	if roll == nil {
		roll = rand.Float64
	}
	if m.FailRate > 0 && roll() < m.FailRate {
		return "", fmt.Errorf("%w: %s jammed on %s", ErrBlendFailed, robot, cmd.Smoothie)
	}
	return fmt.Sprintf("%s ready", cmd.Smoothie), nil
}
