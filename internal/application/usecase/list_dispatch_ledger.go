package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// ErrInvalidArgument marks caller errors that handlers map to 400.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrLedgerDisabled is returned when no dispatch ledger is configured.
var ErrLedgerDisabled = errors.New("dispatch ledger is not configured")

type ListDispatchLedgerCommand struct {
	Trigger string
	Limit   int
	Cursor  string
	From    time.Time
	To      time.Time
}

type ListDispatchLedgerConfig struct {
	DefaultLimit int
	MaxLimit     int
}

type ListDispatchLedgerUseCase struct {
	ledger port.DispatchLedger
	config ListDispatchLedgerConfig
	logger *logger.Logger
}

func NewListDispatchLedgerUseCase(
	ledger port.DispatchLedger,
	config ListDispatchLedgerConfig,
	log *logger.Logger,
) *ListDispatchLedgerUseCase {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 25
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 100
	}
	return &ListDispatchLedgerUseCase{
		ledger: ledger,
		config: config,
		logger: log,
	}
}

func (uc *ListDispatchLedgerUseCase) Execute(
	ctx context.Context,
	cmd ListDispatchLedgerCommand,
) (*dto.AlertLedgerPageDTO, error) {
	if uc.ledger == nil {
		return nil, ErrLedgerDisabled
	}

	trigger := strings.TrimSpace(cmd.Trigger)
	if trigger != "" && trigger != string(valueobject.TriggerCycle) && trigger != string(valueobject.TriggerTest) {
		return nil, fmt.Errorf("%w: trigger must be cycle or test", ErrInvalidArgument)
	}

	limit := cmd.Limit
	if limit <= 0 {
		limit = uc.config.DefaultLimit
	}
	if limit > uc.config.MaxLimit {
		limit = uc.config.MaxLimit
	}

	if !cmd.From.IsZero() && !cmd.To.IsZero() && cmd.From.After(cmd.To) {
		return nil, fmt.Errorf("%w: from must be less than or equal to to", ErrInvalidArgument)
	}

	page, err := uc.ledger.List(ctx, port.DispatchLedgerQuery{
		Trigger: trigger,
		Limit:   limit,
		Cursor:  strings.TrimSpace(cmd.Cursor),
		From:    cmd.From.UTC(),
		To:      cmd.To.UTC(),
	})
	if err != nil {
		if uc.logger != nil {
			uc.logger.Error("Failed to list dispatch ledger", err, "trigger", trigger)
		}
		return nil, fmt.Errorf("failed to list dispatch ledger: %w", err)
	}

	return &dto.AlertLedgerPageDTO{
		Items:      dto.ToAlertEventDTOs(page.Items),
		NextCursor: page.NextCursor,
	}, nil
}
