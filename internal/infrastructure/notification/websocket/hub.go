package websocket

import (
	"context"
	"sync"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

const (
	// MessageTypeStatus статус цикла мониторинга
	MessageTypeStatus = "status"
	// MessageTypeAlert событие отправки алерта
	MessageTypeAlert = "alert"
)

// Hub управляет WebSocket клиентами и рассылает статус цикла и события алертов
// Реализует интерфейс port.StatusNotifier
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Последний статус, отдается новым клиентам сразу после подключения
	lastStatus *dto.StatusDTO

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub создает новый WebSocket hub
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run запускает hub до отмены ctx (в отдельной goroutine)
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			status := h.lastStatus
			total := len(h.clients)
			h.mu.Unlock()

			if status != nil {
				select {
				case client.send <- Message{Type: MessageTypeStatus, Data: status}:
				default:
				}
			}
			h.logger.Debug("Client registered", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Канал клиента заполнен, закрываем соединение
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Register регистрирует нового клиента. После остановки hub'а закрывает канал клиента.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister удаляет клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastStatus рассылает статус цикла (реализация port.StatusNotifier)
func (h *Hub) BroadcastStatus(status *dto.StatusDTO) {
	h.mu.Lock()
	h.lastStatus = status
	h.mu.Unlock()

	h.enqueue(Message{Type: MessageTypeStatus, Data: status})
}

// BroadcastAlert рассылает событие отправки алерта (реализация port.StatusNotifier)
func (h *Hub) BroadcastAlert(alert *dto.AlertEventDTO) {
	h.enqueue(Message{Type: MessageTypeAlert, Data: alert})
}

func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", message.Type)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LastStatus возвращает последний разосланный статус или nil
func (h *Hub) LastStatus() *dto.StatusDTO {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastStatus
}

// Message представляет сообщение для отправки клиенту
type Message struct {
	Type string      `json:"type"` // "status" или "alert"
	Data interface{} `json:"data"`
}
