// Package recovery manages point-in-time recovery snapshots and tracked
// cleanup operations with automatic rollback on failure.
package recovery

import (
	"errors"
	"time"

	"github.com/lyndonlyu/sweepsafe/internal/gitx"
)

var (
	ErrPointNotFound     = errors.New("recovery point not found")
	ErrOperationNotFound = errors.New("operation not found")
	ErrIntegrity         = errors.New("recovery point integrity check failed")
	ErrNoPoints          = errors.New("no recovery points available")
)

// PointType selects what a recovery point captures.
type PointType int

const (
	FullSnapshot PointType = iota
	Incremental
	MetadataOnly
	GitStateOnly
)

func (t PointType) String() string {
	switch t {
	case FullSnapshot:
		return "full_snapshot"
	case Incremental:
		return "incremental"
	case MetadataOnly:
		return "metadata_only"
	case GitStateOnly:
		return "git_state"
	default:
		return "unknown"
	}
}

// OperationStatus tracks the lifecycle of a cleanup operation.
type OperationStatus int

const (
	Pending OperationStatus = iota
	InProgress
	Completed
	Failed
	RolledBack
)

func (s OperationStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// FileRecord is one inventory entry captured at snapshot time.
type FileRecord struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	MTime    time.Time `json:"mtime"`
	Checksum string    `json:"checksum"`
}

// Point is a point-in-time recovery snapshot.
type Point struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Type        PointType    `json:"-"`
	TypeName    string       `json:"type"`
	Description string       `json:"description"`
	ArchivePath string       `json:"archive_path,omitempty"`
	GitState    *gitx.State  `json:"git_state,omitempty"`
	Inventory   []FileRecord `json:"file_inventory,omitempty"`
	Checksum    string       `json:"checksum,omitempty"`
	SizeBytes   int64        `json:"size_bytes"`
	Valid       bool         `json:"is_valid"`
}

// Operation is a tracked cleanup operation.
type Operation struct {
	ID              string          `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	Status          OperationStatus `json:"-"`
	StatusName      string          `json:"status"`
	Description     string          `json:"description"`
	FilesProcessed  []string        `json:"files_processed,omitempty"`
	FilesDeleted    []string        `json:"files_deleted,omitempty"`
	RecoveryPointID string          `json:"recovery_point_id,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	RollbackPointID string          `json:"rollback_point_id,omitempty"`
}
