package domain

import "time"

// AuditAction — тип изменения, зафиксированного в журнале аудита.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
)

// AuditLog — структурированная запись об изменении сущности.
// Пишется явным декоратором вокруг write-path саги, в той же транзакции,
// что и само изменение.
type AuditLog struct {
	ID         string
	EntityName string
	EntityID   string
	Action     AuditAction
	Changes    []byte
	OccurredAt time.Time
}
