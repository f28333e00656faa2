package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/npezzotti/go-chathub/internal/types"
	"github.com/teris-io/shortid"
)

const (
	userColumns = "id, first_name, last_name, email, COALESCE(profile_photo, ''), status, is_deleted, is_email_verified, created_at, updated_at"
	roomColumns = "id, room_type, participants, COALESCE(name, ''), COALESCE(group_photo, ''), created_at, updated_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.FirstName,
		&u.LastName,
		&u.EmailAddress,
		&u.ProfilePhoto,
		&u.Status,
		&u.IsDeleted,
		&u.IsEmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func scanRoom(row rowScanner) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.Kind,
		pq.Array(&r.ParticipantIds),
		&r.Name,
		&r.Photo,
		&r.CreatedAt,
		&r.UpdatedAt,
	)

	return r, err
}

func (db *PgChatRepository) GetUser(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1 LIMIT 1",
		id,
	)

	return scanUser(row)
}

func (db *PgChatRepository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgChatRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	return scanRoom(row)
}

// FindOrCreateSingleRoom relies on the unique pair_key so that concurrent
// callers for the same two users always end up with the same room.
func (db *PgChatRepository) FindOrCreateSingleRoom(ctx context.Context, userA, userB string) (Room, error) {
	key := pairKey(userA, userB)

	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE pair_key = $1 LIMIT 1",
		key,
	)
	room, err := scanRoom(row)
	if err == nil {
		return room, nil
	}
	if err != sql.ErrNoRows {
		return Room{}, fmt.Errorf("find room: %w", err)
	}

	id, err := shortid.Generate()
	if err != nil {
		return Room{}, fmt.Errorf("generate room id: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO rooms (id, room_type, participants, pair_key, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT (pair_key) DO NOTHING",
		id,
		types.RoomKindSingle,
		pq.Array([]string{userA, userB}),
		key,
		now,
	)
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}

	row = db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE pair_key = $1 LIMIT 1",
		key,
	)

	return scanRoom(row)
}

func (db *PgChatRepository) RoomMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT m.id, m.room_id, m.sender_id, COALESCE(m.content, ''), COALESCE(m.file_url, ''), m.is_read, m.created_at, "+
			"u.first_name, u.last_name, COALESCE(u.profile_photo, '') "+
			"FROM messages m JOIN users u ON u.id = m.sender_id "+
			"WHERE m.room_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2",
		roomId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			msg    Message
			sender User
		)
		err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.SenderId,
			&msg.Content,
			&msg.FileUrl,
			&msg.IsRead,
			&msg.CreatedAt,
			&sender.FirstName,
			&sender.LastName,
			&sender.ProfilePhoto,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		sender.Id = msg.SenderId
		msg.Sender = &sender
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgChatRepository) AppendMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	if params.CreatedAt.IsZero() {
		params.CreatedAt = time.Now().UTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	msg := Message{
		Id:        uuid.NewString(),
		RoomId:    params.RoomId,
		SenderId:  params.SenderId,
		Content:   params.Content,
		FileUrl:   params.FileUrl,
		CreatedAt: params.CreatedAt,
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (id, room_id, sender_id, content, file_url, is_read, created_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), FALSE, $6)",
		msg.Id,
		msg.RoomId,
		msg.SenderId,
		msg.Content,
		msg.FileUrl,
		msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		"UPDATE rooms SET updated_at = $1 WHERE id = $2",
		msg.CreatedAt,
		msg.RoomId,
	)
	if err != nil {
		return Message{}, fmt.Errorf("update room: %w", err)
	}

	var n int64
	if n, err = res.RowsAffected(); err != nil {
		return Message{}, err
	}
	if n == 0 {
		err = sql.ErrNoRows
		return Message{}, err
	}

	var sender User
	sender, err = scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1 LIMIT 1",
		msg.SenderId,
	))
	if err != nil {
		return Message{}, fmt.Errorf("get sender: %w", err)
	}
	msg.Sender = &sender

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) MarkRead(ctx context.Context, roomId, readerId string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET is_read = TRUE "+
			"WHERE room_id = $1 AND is_read = FALSE AND sender_id <> $2",
		roomId,
		readerId,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgChatRepository) RoomsForUser(ctx context.Context, userId string) ([]RoomSummary, error) {
	query := `
		SELECT
				r.id,
				r.room_type,
				r.participants,
				COALESCE(r.name, ''),
				COALESCE(r.group_photo, ''),
				r.created_at,
				r.updated_at,
				lm.id,
				lm.sender_id,
				lm.content,
				lm.file_url,
				lm.is_read,
				lm.created_at,
				(
					SELECT COUNT(*) FROM messages um
					WHERE um.room_id = r.id AND um.is_read = FALSE AND um.sender_id <> $1
				) AS unread_count
		FROM rooms r
		LEFT JOIN LATERAL (
				SELECT id, sender_id, COALESCE(content, '') AS content, COALESCE(file_url, '') AS file_url, is_read, created_at
				FROM messages m
				WHERE m.room_id = r.id
				ORDER BY m.created_at DESC, m.id DESC
				LIMIT 1
		) lm ON TRUE
		WHERE $1 = ANY (r.participants)
		ORDER BY r.updated_at DESC;
`

	rows, err := db.conn.QueryContext(ctx, query, userId)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms for user: %w", err)
	}
	defer rows.Close()

	summaries := make([]RoomSummary, 0)
	for rows.Next() {
		var (
			room         Room
			msgId        sql.NullString
			msgSenderId  sql.NullString
			msgContent   sql.NullString
			msgFileUrl   sql.NullString
			msgIsRead    sql.NullBool
			msgCreatedAt sql.NullTime
			unreadCount  int
		)

		err := rows.Scan(
			&room.Id,
			&room.Kind,
			pq.Array(&room.ParticipantIds),
			&room.Name,
			&room.Photo,
			&room.CreatedAt,
			&room.UpdatedAt,
			&msgId,
			&msgSenderId,
			&msgContent,
			&msgFileUrl,
			&msgIsRead,
			&msgCreatedAt,
			&unreadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		summary := RoomSummary{Room: room, UnreadCount: unreadCount}
		if msgId.Valid {
			summary.LastMessage = &Message{
				Id:        msgId.String,
				RoomId:    room.Id,
				SenderId:  msgSenderId.String,
				Content:   msgContent.String,
				FileUrl:   msgFileUrl.String,
				IsRead:    msgIsRead.Bool,
				CreatedAt: msgCreatedAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summaries, nil
}
