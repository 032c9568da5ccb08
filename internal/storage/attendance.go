package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/pgvector/pgvector-go"
)

// AttendanceEvent is one accepted attendance log entry.
type AttendanceEvent struct {
	ID         int64     `json:"id"`
	IdentityID string    `json:"identity_id"`
	EventType  string    `json:"event_type"`
	CameraID   string    `json:"camera_id"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// UnknownFace is a detected face that matched no enrolled identity.
type UnknownFace struct {
	ID        int64
	CameraID  string
	Embedding []float32
	Box       detect.Box
	CreatedAt time.Time
}

// AttendanceRepository persists attendance events and unknown-face records.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a PostgreSQL-backed attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Insert stores one attendance event and fills in its assigned id and
// timestamp.
func (r *AttendanceRepository) Insert(ctx context.Context, event *AttendanceEvent) error {
	if event.EventType == "" {
		event.EventType = "entry"
	}
	if event.CameraID == "" {
		event.CameraID = "default"
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance_logs (identity_id, event_type, camera_id, confidence)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, event.IdentityID, event.EventType, event.CameraID, event.Confidence).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attendance log: %w", err)
	}
	return nil
}

// InsertUnknown stores an unknown-face record.
func (r *AttendanceRepository) InsertUnknown(ctx context.Context, face *UnknownFace) error {
	if face.CameraID == "" {
		face.CameraID = "default"
	}
	var embedding any
	if len(face.Embedding) > 0 {
		embedding = pgvector.NewVector(face.Embedding)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO unknown_faces (camera_id, embedding, box_top, box_right, box_bottom, box_left)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, face.CameraID, embedding, face.Box.Top, face.Box.Right, face.Box.Bottom, face.Box.Left).
		Scan(&face.ID, &face.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert unknown face: %w", err)
	}
	return nil
}

// ListFilter narrows a List query. Zero values mean no filtering.
type ListFilter struct {
	IdentityID string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// List returns attendance events, newest first.
func (r *AttendanceRepository) List(ctx context.Context, filter ListFilter) ([]AttendanceEvent, error) {
	query := `
		SELECT id, identity_id, event_type, camera_id, confidence, created_at
		FROM attendance_logs
		WHERE ($1 = '' OR identity_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := r.pool.Query(ctx, query, filter.IdentityID, from, to, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query attendance logs: %w", err)
	}
	defer rows.Close()

	var events []AttendanceEvent
	for rows.Next() {
		var e AttendanceEvent
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.EventType, &e.CameraID, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance log: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance logs: %w", err)
	}
	return events, nil
}

// LastLogged returns the most recent attendance timestamp per identity since
// the given time. Used to rebuild debouncer state after a restart.
func (r *AttendanceRepository) LastLogged(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, MAX(created_at)
		FROM attendance_logs
		WHERE created_at >= $1
		GROUP BY identity_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query last logged: %w", err)
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan last logged: %w", err)
		}
		last[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last logged: %w", err)
	}
	return last, nil
}
