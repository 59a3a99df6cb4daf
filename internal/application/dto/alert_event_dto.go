package dto

import (
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
)

// AlertEventDTO запись о попытке отправки алерта
type AlertEventDTO struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	Outcome     string    `json:"outcome"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason"`
	Kinds       []string  `json:"kinds"`
	Digest      string    `json:"digest,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	ArchiveURL  string    `json:"archive_url,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// FromDispatchRecord конвертирует Domain Entity в DTO
func FromDispatchRecord(record *entity.DispatchRecord) *AlertEventDTO {
	kinds := make([]string, 0, len(record.Kinds()))
	for _, kind := range record.Kinds() {
		kinds = append(kinds, kind.String())
	}

	return &AlertEventDTO{
		ID:          record.ID(),
		Trigger:     string(record.Trigger()),
		Outcome:     string(record.Outcome()),
		Success:     record.Success(),
		Reason:      record.Reason(),
		Kinds:       kinds,
		Digest:      record.Digest().String(),
		ErrorKind:   record.ErrorKind(),
		StatusCode:  record.StatusCode(),
		ArchiveKey:  record.ArchiveKey(),
		AttemptedAt: record.AttemptedAt(),
	}
}

// ToAlertEventDTOs конвертирует слайс Entity в слайс DTO
func ToAlertEventDTOs(records []*entity.DispatchRecord) []*AlertEventDTO {
	dtos := make([]*AlertEventDTO, len(records))
	for i, r := range records {
		dtos[i] = FromDispatchRecord(r)
	}
	return dtos
}

// AlertLedgerPageDTO страница журнала отправок
type AlertLedgerPageDTO struct {
	Items      []*AlertEventDTO `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
