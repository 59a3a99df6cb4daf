package port

import "github.com/dreschagin/monitor-dw/internal/application/dto"

// StatusNotifier рассылает статус подключенным клиентам (Port)
// Реализация в Infrastructure слое (WebSocket Hub)
type StatusNotifier interface {
	// BroadcastStatus отправляет статус цикла всем клиентам
	BroadcastStatus(status *dto.StatusDTO)

	// BroadcastAlert отправляет событие отправки алерта
	BroadcastAlert(alert *dto.AlertEventDTO)

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int
}
