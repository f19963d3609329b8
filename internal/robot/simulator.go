package robot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/smoothie-dispatch/internal/mq"
)

// Reporter отправляет сигнал завершения от имени робота.
// Реализация: mq.Publisher.
type Reporter interface {
	PublishCompletion(ctx context.Context, robot string, payload mq.CompletionPayload) error
}

// Simulator изображает парк роботов.
//
// Каждый робот — отдельный consumer с prefetch 1: пока он готовит
// один смузи, следующая команда ждёт в его очереди.
type Simulator struct {
	names    []string
	conn     *mq.Connection
	reporter Reporter
	maker    Maker
	silent   bool

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	group      *errgroup.Group

	mu      sync.Mutex
	handled map[string]int
}

// Config — конфигурация Simulator.
type Config struct {
	// Names — имена роботов.
	Names []string

	// MQ
	Conn     *mq.Connection
	Reporter Reporter

	// Maker — опционально (default: BlenderMaker с MakeTime 3s).
	Maker Maker

	// Silent — не отвечать на команды.
	Silent bool

	Logger *slog.Logger
}

// New создаёт Simulator.
func New(cfg Config) *Simulator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maker := cfg.Maker
	if maker == nil {
		maker = &BlenderMaker{MakeTime: defaultMakeTime}
	}

	return &Simulator{
		names:    cfg.Names,
		conn:     cfg.Conn,
		reporter: cfg.Reporter,
		maker:    maker,
		silent:   cfg.Silent,
		logger:   logger,
		handled:  make(map[string]int),
	}
}

// Start запускает по consumer на каждого робота.
func (s *Simulator) Start(ctx context.Context) error {
	if len(s.names) == 0 {
		return ErrNoRobots
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting robot simulator",
		"robots", s.names,
		"silent", s.silent,
	)

	group, gctx := errgroup.WithContext(ctx)
	s.group = group

	for _, name := range s.names {
		consumer := mq.NewConsumer(s.conn, s.logger.With("robot", name), mq.ConsumerConfig{
			Setup: func(ch *amqp.Channel) (string, error) {
				return mq.DeclareRobotQueue(ch, name)
			},
			Handler:  s.handleCommand(name),
			Prefetch: 1,
			RawBody:  true,
		})

		group.Go(func() error {
			if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	s.logger.Info("robot simulator started")
	return nil
}

// Stop останавливает всех роботов и ждёт текущие заказы.
func (s *Simulator) Stop() {
	s.logger.Info("stopping robot simulator...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.group != nil {
		if err := s.group.Wait(); err != nil {
			s.logger.Error("robot consumer error", "error", err)
		}
	}

	s.logger.Info("robot simulator stopped")
}

// Handled возвращает число обработанных команд по роботам.
func (s *Simulator) Handled() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]int, len(s.handled))
	for name, n := range s.handled {
		result[name] = n
	}
	return result
}

func (s *Simulator) countHandled(robot string) {
	s.mu.Lock()
	s.handled[robot]++
	s.mu.Unlock()
}
