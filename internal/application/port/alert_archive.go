package port

import "context"

// AlertArchive хранит отправленные payload'ы алертов.
type AlertArchive interface {
	// PutObject загружает объект и возвращает URL для чтения.
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
}
