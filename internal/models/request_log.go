// Package models defines the persistence model for the request audit log.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// RequestLog records one relayed request. Repairs holds the per-request
// summary of what the shim changed; RequestBody is only populated when body
// logging is enabled.
type RequestLog struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	ConversationID string    `gorm:"index;size:128" json:"conversation_id"`
	Method         string    `gorm:"size:10" json:"method"`
	Path           string    `gorm:"size:512" json:"path"`
	Model          string    `gorm:"index;size:128" json:"model"`
	StatusCode     int       `gorm:"index" json:"status_code"`
	IsStream       bool      `json:"is_stream"`
	DurationMs     int64     `json:"duration_ms"`
	SourceIP       string    `gorm:"size:64" json:"source_ip"`
	UserAgent      string    `gorm:"size:512" json:"user_agent"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`

	Repairs     datatypes.JSON `json:"repairs,omitempty"`
	RequestBody datatypes.JSON `json:"request_body,omitempty"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (RequestLog) TableName() string {
	return "request_logs"
}

// RepairSummary is serialized into RequestLog.Repairs.
type RepairSummary struct {
	SchemasSanitized  bool `json:"schemas_sanitized,omitempty"`
	SignatureInjected bool `json:"signature_injected,omitempty"`
	SignatureCaptured bool `json:"signature_captured,omitempty"`
}
