package runs

import "time"

const maxIdentifierLength = 190

// ExecutionRun is one proxied program execution, kept as an audit record.
// RoomInstanceID scopes it to one incarnation of a room; a later room that
// reuses RoomID never sees it.
type ExecutionRun struct {
	RunID            string `gorm:"column:run_id;primaryKey;size:190;not null"`
	RoomID           string `gorm:"column:room_id;size:190;not null;index:idx_runs_room"`
	RoomInstanceID   string `gorm:"column:room_instance_id;size:64;not null;default:'';index:idx_runs_instance_started,priority:1"`
	ConnID           string `gorm:"column:conn_id;size:190;not null"`
	Username         string `gorm:"column:username;size:190;not null"`
	Language         string `gorm:"column:language;size:64;not null"`
	Succeeded        bool   `gorm:"column:succeeded;not null;default:false"`
	StatusCode       int    `gorm:"column:status_code;not null;default:0"`
	DurationMillis   int64  `gorm:"column:duration_ms;not null;default:0"`
	StartedAtSeconds int64  `gorm:"column:started_at_s;not null;index:idx_runs_instance_started,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ExecutionRun) TableName() string {
	return "execution_runs"
}

// RunRecord is the input to Service.Record.
type RunRecord struct {
	RoomID         string
	RoomInstanceID string
	ConnID         string
	Username       string
	Language       string
	Succeeded      bool
	StatusCode     int
	StartedAt      time.Time
	Duration       time.Duration
}
