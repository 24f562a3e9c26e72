package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	InputTypeOnline  = "online"
	InputTypeOffline = "offline"

	ModeAll    = "all"
	ModeDomain = "domain"
)

type Meta struct {
	Tool        string    `json:"tool"`
	Version     string    `json:"version"`
	ScanID      string    `json:"scan_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Mode        string    `json:"mode"`       // all | domain
	InputType   string    `json:"input_type"` // online | offline
	Grouped     bool      `json:"grouped,omitempty"`
}

// NewMeta stamps a fresh scan id.
func NewMeta(tool, version, mode, inputType string) Meta {
	return Meta{
		Tool:        tool,
		Version:     version,
		ScanID:      uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Mode:        mode,
		InputType:   inputType,
	}
}
