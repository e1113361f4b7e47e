package model

import "time"

// Upload is one row of the upload history
type Upload struct {
	ID         int64     `json:"id" db:"id"`
	Username   string    `json:"username" db:"username"`
	Filename   string    `json:"filename" db:"filename"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
	Rows       int       `json:"rows" db:"rows"`
	Cols       int       `json:"cols" db:"cols"`
	Checksum   string    `json:"checksum" db:"checksum"`
}

// User is a stored credential record
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Salt         string    `json:"-" db:"salt"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// StageMetrics captures how one pipeline stage ran
type StageMetrics struct {
	Stage      string        `json:"stage"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	RowsIn     int           `json:"rows_in"`
	RowsOut    int           `json:"rows_out"`
	Skipped    bool          `json:"skipped,omitempty"`
	SkipReason string        `json:"skip_reason,omitempty"`
}
