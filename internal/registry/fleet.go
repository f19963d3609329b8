package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// Fleet — содержимое fleet-файла.
//
//	robots:
//	  - name: blender-1
//	  - name: blender-2
//	    status: FAULTED
type Fleet struct {
	Robots []FleetRobot `yaml:"robots"`
}

// FleetRobot — описание одного робота. Пустой статус означает AVAILABLE.
type FleetRobot struct {
	Name   string              `yaml:"name"`
	Status domain.WorkerStatus `yaml:"status,omitempty"`
}

// ParseFleet разбирает YAML и валидирует роботов.
func ParseFleet(data []byte) (*Fleet, error) {
	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("parse fleet: %w", err)
	}

	seen := make(map[string]bool, len(fleet.Robots))
	for i := range fleet.Robots {
		robot := &fleet.Robots[i]
		if err := domain.ValidateWorkerName(robot.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWorkerName, err)
		}
		if seen[robot.Name] {
			return nil, fmt.Errorf("duplicate robot %q in fleet", robot.Name)
		}
		seen[robot.Name] = true

		if robot.Status == "" {
			robot.Status = domain.WorkerStatusAvailable
		}
		if !robot.Status.IsValid() {
			return nil, fmt.Errorf("%w: %s for robot %s", ErrInvalidStatus, robot.Status, robot.Name)
		}
	}
	return &fleet, nil
}

// LoadFleet читает fleet-файл с диска.
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}
	return ParseFleet(data)
}

// Seed регистрирует роботов из fleet.
//
// Уже существующие роботы пропускаются, их статус не трогается:
// после рестарта BUSY-робот должен остаться BUSY.
// Возвращает количество добавленных.
func Seed(ctx context.Context, reg Registry, fleet *Fleet, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	added := 0
	for _, robot := range fleet.Robots {
		err := reg.Register(ctx, robot.Name)
		if errors.Is(err, ErrWorkerExists) {
			logger.Debug("robot already registered, skipping", "robot", robot.Name)
			continue
		}
		if err != nil {
			return added, fmt.Errorf("register %s: %w", robot.Name, err)
		}

		if robot.Status != domain.WorkerStatusAvailable {
			if err := reg.SetStatus(ctx, robot.Name, robot.Status); err != nil {
				return added, fmt.Errorf("set initial status for %s: %w", robot.Name, err)
			}
		}

		added++
		logger.Info("robot registered", "robot", robot.Name, "status", robot.Status)
	}
	return added, nil
}
