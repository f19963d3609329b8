package broker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

const defaultTokenAttempts = 5

// TokenFunc генерирует кандидата в токены.
type TokenFunc func() (string, error)

// Config — конфигурация Broker.
type Config struct {
	// NewToken — генератор токенов (default: UUID v4).
	NewToken TokenFunc

	// TokenAttempts — сколько раз перегенерировать токен при коллизии (default: 5).
	TokenAttempts int

	Logger *slog.Logger
}

// Broker — потокобезопасная таблица ожидающих continuation.
//
// Потребление (Resolve, таймер, Cancel) всегда начинается с удаления
// токена из pending под мьютексом. Кто удалил, тот и будит workflow,
// поэтому разбудить его можно ровно один раз.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]*Continuation
	closed   bool
	newToken TokenFunc
	attempts int
	logger   *slog.Logger
}

// New создаёт Broker.
func New(cfg Config) *Broker {
	newToken := cfg.NewToken
	if newToken == nil {
		newToken = randomToken
	}

	attempts := cfg.TokenAttempts
	if attempts <= 0 {
		attempts = defaultTokenAttempts
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		pending:  make(map[string]*Continuation),
		newToken: newToken,
		attempts: attempts,
		logger:   logger,
	}
}

func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Register создаёт continuation для заказа и планирует её истечение.
func (b *Broker) Register(orderID uuid.UUID, deadline time.Time) (*Continuation, error) {
	wait := time.Until(deadline)
	if wait <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeadlinePassed, deadline.Format(time.RFC3339Nano))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	token, err := b.uniqueToken()
	if err != nil {
		return nil, err
	}

	c := &Continuation{
		Token:    token,
		OrderID:  orderID,
		Deadline: deadline,
		done:     make(chan Outcome, 1),
	}
	b.pending[token] = c

	// Таймер взводится под мьютексом: expire не сможет выполниться
	// раньше, чем continuation попадёт в pending.
	c.timer = time.AfterFunc(wait, func() { b.expire(token) })

	telemetry.WithToken(telemetry.WithOrderID(b.logger, orderID), token).
		Debug("continuation registered", "deadline", deadline)
	return c, nil
}

// uniqueToken вызывается под b.mu.
func (b *Broker) uniqueToken() (string, error) {
	var lastErr error
	for i := 0; i < b.attempts; i++ {
		token, err := b.newToken()
		if err != nil {
			lastErr = err
			continue
		}
		if token == "" {
			continue
		}
		if _, taken := b.pending[token]; taken {
			b.logger.Warn("continuation token collision, regenerating")
			continue
		}
		return token, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, lastErr)
	}
	return "", fmt.Errorf("%w: no unique token after %d attempts", ErrTokenGeneration, b.attempts)
}

// Resolve будит workflow результатом от робота.
//
// Возвращает false, если токен неизвестен или уже потреблён.
// Это не ошибка: сигнал пришёл повторно или после таймаута.
func (b *Broker) Resolve(token string, result Result) bool {
	c := b.take(token)
	if c == nil {
		telemetry.WithToken(b.logger, token).
			Debug("completion for unknown or consumed token ignored")
		return false
	}

	c.timer.Stop()
	c.done <- Outcome{Result: result}
	return true
}

// Cancel потребляет continuation, не будя workflow.
//
// Используется, когда команда не ушла: сигнала не будет,
// а запоздавший Resolve должен стать no-op.
func (b *Broker) Cancel(token string) bool {
	c := b.take(token)
	if c == nil {
		return false
	}
	c.timer.Stop()
	return true
}

// expire вызывается таймером в момент дедлайна.
func (b *Broker) expire(token string) {
	c := b.take(token)
	if c == nil {
		return
	}

	telemetry.WithToken(telemetry.WithOrderID(b.logger, c.OrderID), token).
		Debug("continuation expired")
	c.done <- Outcome{TimedOut: true}
}

// take удаляет continuation из pending и возвращает её.
func (b *Broker) take(token string) *Continuation {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.pending[token]
	if !ok {
		return nil
	}
	delete(b.pending, token)
	return c
}

// Pending возвращает количество ожидающих continuation.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close запрещает новые регистрации и будит всех ожидающих таймаутом.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	drained := make([]*Continuation, 0, len(b.pending))
	for token, c := range b.pending {
		delete(b.pending, token)
		drained = append(drained, c)
	}
	b.mu.Unlock()

	for _, c := range drained {
		c.timer.Stop()
		c.done <- Outcome{TimedOut: true}
	}

	if len(drained) > 0 {
		b.logger.Info("continuation broker closed", "expired", len(drained))
	}
}
