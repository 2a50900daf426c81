package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/database"
)

// FaceRepository stores users and faces in MariaDB using JSON columns for
// embeddings, compatible with the attendance system's tables.
type FaceRepository struct {
	pool *Pool
}

var _ database.Backend = (*FaceRepository)(nil)

// NewFaceRepository creates a new MariaDB face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

// Migrate applies pending schema migrations.
func (r *FaceRepository) Migrate(ctx context.Context) error {
	return r.pool.Migrate(ctx)
}

// Close closes the underlying pool.
func (r *FaceRepository) Close() error {
	return r.pool.Close()
}

// AppliedMigrations lists the applied schema versions in order.
func (r *FaceRepository) AppliedMigrations(ctx context.Context) ([]string, error) {
	return database.AppliedVersions(ctx, r.pool.db)
}

// Ping checks that the database is reachable.
func (r *FaceRepository) Ping(ctx context.Context) error {
	return r.pool.db.PingContext(ctx)
}

const (
	userColumns = "user_id, encoding, created_at, updated_at"
	faceColumns = "face_id, user_id, embedding, enrolled_at"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListUsers returns every user.
func (r *FaceRepository) ListUsers(ctx context.Context) ([]database.StoredUser, error) {
	return listUsers(ctx, r.pool.db)
}

// ListFaces returns every face.
func (r *FaceRepository) ListFaces(ctx context.Context) ([]database.StoredFace, error) {
	return listFaces(ctx, r.pool.db)
}

// ListProfiles reads users and faces inside one read-only repeatable-read
// transaction, so both lists come from the same committed state.
func (r *FaceRepository) ListProfiles(ctx context.Context) ([]database.StoredUser, []database.StoredFace, error) {
	tx, err := r.pool.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot read: %w", err)
	}
	defer tx.Rollback()

	users, err := listUsers(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	faces, err := listFaces(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit snapshot read: %w", err)
	}
	return users, faces, nil
}

func listUsers(ctx context.Context, q queryer) ([]database.StoredUser, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []database.StoredUser
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func listFaces(ctx context.Context, q queryer) ([]database.StoredFace, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces ORDER BY user_id, enrolled_at, face_id")
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// GetUser retrieves one user by ID.
func (r *FaceRepository) GetUser(ctx context.Context, userID string) (*database.StoredUser, error) {
	return getUser(ctx, r.pool.db, userID, false)
}

// GetFace retrieves one face by ID.
func (r *FaceRepository) GetFace(ctx context.Context, faceID string) (*database.StoredFace, error) {
	row := r.pool.db.QueryRowContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE face_id = ?", faceID)
	face, err := scanFaceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &face, nil
}

// ListUserFaces returns all faces of one user.
func (r *FaceRepository) ListUserFaces(ctx context.Context, userID string) ([]database.StoredFace, error) {
	return listUserFaces(ctx, r.pool.db, userID)
}

// EnsureUser creates the user if it does not exist.
func (r *FaceRepository) EnsureUser(ctx context.Context, userID string) error {
	if _, err := r.pool.db.ExecContext(ctx, "INSERT IGNORE INTO users (user_id) VALUES (?)", userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// AddFaces inserts faces and recomputes the centroid in one transaction.
func (r *FaceRepository) AddFaces(
	ctx context.Context, userID string, faces []database.StoredFace,
) (*database.UserState, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT IGNORE INTO users (user_id) VALUES (?)", userID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if _, err := getUser(ctx, tx, userID, true); err != nil {
		return nil, err
	}

	for i := range faces {
		face := &faces[i]
		if face.ID == "" {
			face.ID = uuid.NewString()
		}
		data, err := json.Marshal(face.Embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO faces (face_id, user_id, embedding) VALUES (?, ?, ?)",
			face.ID, userID, data,
		); err != nil {
			return nil, fmt.Errorf("insert face %s: %w", face.ID, err)
		}
	}

	state, err := recomputeUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return state, nil
}

// DeleteFace removes a face and recomputes its owner's centroid in one transaction.
func (r *FaceRepository) DeleteFace(ctx context.Context, faceID string) (*database.UserState, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, "SELECT user_id FROM faces WHERE face_id = ?", faceID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query face owner: %w", err)
	}

	if _, err := getUser(ctx, tx, userID, true); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM faces WHERE face_id = ?", faceID)
	if err != nil {
		return nil, fmt.Errorf("delete face: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, database.ErrNotFound
	}

	state, err := recomputeUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return state, nil
}

func recomputeUser(ctx context.Context, tx *sql.Tx, userID string) (*database.UserState, error) {
	faces, err := listUserFaces(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	centroid := database.RecomputeCentroid(faces)
	var encoding any
	if centroid != nil {
		data, err := json.Marshal(centroid)
		if err != nil {
			return nil, fmt.Errorf("marshal centroid: %w", err)
		}
		encoding = data
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET encoding = ?, updated_at = CURRENT_TIMESTAMP(6) WHERE user_id = ?",
		encoding, userID,
	); err != nil {
		return nil, fmt.Errorf("update centroid: %w", err)
	}

	user, err := getUser(ctx, tx, userID, false)
	if err != nil {
		return nil, err
	}
	return &database.UserState{User: *user, Faces: faces}, nil
}

func getUser(ctx context.Context, q queryer, userID string, forUpdate bool) (*database.StoredUser, error) {
	query := "SELECT " + userColumns + " FROM users WHERE user_id = ?"
	if forUpdate {
		query += " FOR UPDATE"
	}
	u, err := scanUserRow(q.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func listUserFaces(ctx context.Context, q queryer, userID string) ([]database.StoredFace, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE user_id = ? ORDER BY enrolled_at, face_id", userID)
	if err != nil {
		return nil, fmt.Errorf("query user faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// decodeVector parses a JSON float list. Rows written by older tooling may
// hold a list-of-lists; the first inner list is used in that case.
func decodeVector(data []byte) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(data, &v); err == nil {
		return v, nil
	}
	var nested [][]float32
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("decode embedding json: %w", err)
	}
	if len(nested) == 0 {
		return nil, errors.New("decode embedding json: empty list")
	}
	return nested[0], nil
}

func scanUserRow(scanner interface{ Scan(...any) error }) (database.StoredUser, error) {
	var u database.StoredUser
	var encoding []byte

	if err := scanner.Scan(&u.UserID, &encoding, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, err
		}
		return u, fmt.Errorf("scan user: %w", err)
	}
	if encoding != nil {
		u.Centroid, u.DecodeErr = decodeVector(encoding)
	}
	return u, nil
}

func scanFaceRow(scanner interface{ Scan(...any) error }) (database.StoredFace, error) {
	var face database.StoredFace
	var embedding []byte

	if err := scanner.Scan(&face.ID, &face.UserID, &embedding, &face.EnrolledAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return face, err
		}
		return face, fmt.Errorf("scan face: %w", err)
	}
	if embedding == nil {
		face.DecodeErr = errors.New("embedding is NULL")
		return face, nil
	}
	face.Embedding, face.DecodeErr = decodeVector(embedding)
	face.Dim = len(face.Embedding)
	return face, nil
}

func scanFaces(rows *sql.Rows) ([]database.StoredFace, error) {
	var faces []database.StoredFace
	for rows.Next() {
		face, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}
