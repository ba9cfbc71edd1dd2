package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sh1vu7/secreteshare/internal/share"
)

// ErrDuplicate is returned when an insert collides with an existing key.
var ErrDuplicate = errors.New("duplicate key")

const shareColumns = `id, access_token, sender_id, recipient_kind, recipient_id, recipient_display,
	content_chat_id, content_message_id, content_kind, hide_attribution, prevent_resharing,
	max_views, view_count, status, control_chat_id, control_message_id, failure_reason,
	created_at, updated_at, expires_at, viewed_at, viewed_by, expired_at, revoked_at, destructed_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (*share.Share, error) {
	var (
		sh               share.Share
		recipientID      sql.NullInt64
		recipientDisplay sql.NullString
		hide, prevent    int
		maxViews         int
		controlChat      sql.NullInt64
		controlMessage   sql.NullInt64
		failure          sql.NullString
		createdAt        int64
		updatedAt        int64
		expiresAt        sql.NullInt64
		viewedAt         sql.NullInt64
		viewedBy         sql.NullInt64
		expiredAt        sql.NullInt64
		revokedAt        sql.NullInt64
		destructedAt     sql.NullInt64
	)

	err := row.Scan(
		&sh.ID, &sh.AccessToken, &sh.SenderID, &sh.RecipientKind, &recipientID, &recipientDisplay,
		&sh.Content.ChatID, &sh.Content.MessageID, &sh.Content.Kind, &hide, &prevent,
		&maxViews, &sh.ViewCount, &sh.Status, &controlChat, &controlMessage, &failure,
		&createdAt, &updatedAt, &expiresAt, &viewedAt, &viewedBy, &expiredAt, &revokedAt, &destructedAt,
	)
	if err != nil {
		return nil, err
	}

	sh.RecipientID = fromNullInt64(recipientID)
	sh.RecipientDisplay = recipientDisplay.String
	sh.Protection = share.Protection{HideAttribution: hide != 0, PreventResharing: prevent != 0}
	sh.MaxViews = share.MaxViewsFromColumn(maxViews)
	if controlChat.Valid && controlMessage.Valid {
		sh.ControlMessage = &share.MessageRef{ChatID: controlChat.Int64, MessageID: controlMessage.Int64}
	}
	sh.FailureReason = failure.String
	sh.CreatedAt = fromMillis(createdAt)
	sh.UpdatedAt = fromMillis(updatedAt)
	sh.ExpiresAt = fromNullMillis(expiresAt)
	sh.ViewedAt = fromNullMillis(viewedAt)
	sh.ViewedBy = fromNullInt64(viewedBy)
	sh.ExpiredAt = fromNullMillis(expiredAt)
	sh.RevokedAt = fromNullMillis(revokedAt)
	sh.DestructedAt = fromNullMillis(destructedAt)
	return &sh, nil
}

// InsertShare persists a new share record.
// Fails if the id or access token already exists.
func (s *Store) InsertShare(ctx context.Context, sh *share.Share) error {
	var controlChat, controlMessage sql.NullInt64
	if sh.ControlMessage != nil {
		controlChat = sql.NullInt64{Int64: sh.ControlMessage.ChatID, Valid: true}
		controlMessage = sql.NullInt64{Int64: sh.ControlMessage.MessageID, Valid: true}
	}

	_, err := s.exec(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sh.ID, sh.AccessToken, sh.SenderID, string(sh.RecipientKind), nullInt64(sh.RecipientID), nullString(sh.RecipientDisplay),
		sh.Content.ChatID, sh.Content.MessageID, string(sh.Content.Kind),
		boolInt(sh.Protection.HideAttribution), boolInt(sh.Protection.PreventResharing),
		sh.MaxViews.Column(), sh.ViewCount, string(sh.Status), controlChat, controlMessage, nullString(sh.FailureReason),
		millis(sh.CreatedAt), millis(sh.UpdatedAt), nullMillis(sh.ExpiresAt), nullMillis(sh.ViewedAt), nullInt64(sh.ViewedBy),
		nullMillis(sh.ExpiredAt), nullMillis(sh.RevokedAt), nullMillis(sh.DestructedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert share: %w: %v", ErrDuplicate, err)
	}
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

// GetShare returns the share with the given id, or share.ErrNotFound.
func (s *Store) GetShare(ctx context.Context, id string) (*share.Share, error) {
	sh, err := scanShare(s.queryRow(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, share.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share: %w", err)
	}
	return sh, nil
}

// GetShareByToken returns the share with the given access token, or
// share.ErrNotFound. Finalized shares are returned too.
func (s *Store) GetShareByToken(ctx context.Context, token string) (*share.Share, error) {
	sh, err := scanShare(s.queryRow(ctx, `SELECT `+shareColumns+` FROM shares WHERE access_token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, share.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share by token: %w", err)
	}
	return sh, nil
}

// RegisterView atomically counts one view of the share holding token.
//
// The statement matches only a live share that is not past its expiry, has
// budget left, and is either a link share, unbound, or bound to viewer.
// In the same write it binds an unbound recipient, increments view_count,
// and moves the share to destructed when the budget is used up or to
// viewed otherwise.
//
// Returns the updated share and true, or nil and false when nothing
// matched. Two concurrent callers on a single-view share can never both
// get true.
func (s *Store) RegisterView(ctx context.Context, token string, viewer share.Viewer, now time.Time) (*share.Share, bool, error) {
	ts := millis(now)
	sh, err := scanShare(s.queryRow(ctx, `
		UPDATE shares SET
			view_count = view_count + 1,
			recipient_id = COALESCE(recipient_id, ?),
			recipient_display = COALESCE(recipient_display, ?),
			status = CASE WHEN max_views > 0 AND view_count + 1 >= max_views
				THEN 'destructed' ELSE 'viewed' END,
			destructed_at = CASE WHEN max_views > 0 AND view_count + 1 >= max_views
				THEN ? ELSE destructed_at END,
			viewed_at = ?,
			viewed_by = ?,
			updated_at = ?
		WHERE access_token = ?
			AND status IN ('active', 'viewed')
			AND (expires_at IS NULL OR expires_at > ?)
			AND (max_views <= 0 OR view_count < max_views)
			AND (recipient_kind = 'link' OR recipient_id IS NULL OR recipient_id = ?)
		RETURNING `+shareColumns,
		viewer.ID, nullString(viewer.Display),
		ts, ts, viewer.ID, ts,
		token, ts, viewer.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("register view: %w", err)
	}
	return sh, true, nil
}

// RevokeShare moves a live share to revoked and pulls expires_at to now.
// Returns false if the share was already terminal, is past its expiry, or
// does not exist.
func (s *Store) RevokeShare(ctx context.Context, id string, now time.Time) (*share.Share, bool, error) {
	ts := millis(now)
	sh, err := scanShare(s.queryRow(ctx, `
		UPDATE shares SET status = 'revoked', revoked_at = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('active', 'viewed')
			AND (expires_at IS NULL OR expires_at > ?)
		RETURNING `+shareColumns,
		ts, ts, ts, id, ts,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("revoke share: %w", err)
	}
	return sh, true, nil
}

// ExpireShare moves an active share to expired.
// A share that was viewed, revoked or destructed is left untouched.
func (s *Store) ExpireShare(ctx context.Context, id string, now time.Time) (bool, error) {
	ts := millis(now)
	res, err := s.exec(ctx, `
		UPDATE shares SET status = 'expired', expired_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`, ts, ts, id)
	if err != nil {
		return false, fmt.Errorf("expire share: %w", err)
	}
	return applied(res)
}

// FinishViewedShare moves a viewed share whose expiry has passed to
// destructed. Its view budget was partly spent, so it does not count as
// expired.
func (s *Store) FinishViewedShare(ctx context.Context, id string, now time.Time) (bool, error) {
	ts := millis(now)
	res, err := s.exec(ctx, `
		UPDATE shares SET status = 'destructed', destructed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'viewed'
			AND expires_at IS NOT NULL AND expires_at <= ?
	`, ts, ts, id, ts)
	if err != nil {
		return false, fmt.Errorf("finish viewed share: %w", err)
	}
	return applied(res)
}

// DestructShare moves a live share to destructed.
func (s *Store) DestructShare(ctx context.Context, id string, now time.Time) (bool, error) {
	ts := millis(now)
	res, err := s.exec(ctx, `
		UPDATE shares SET status = 'destructed', destructed_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('active', 'viewed')
	`, ts, ts, id)
	if err != nil {
		return false, fmt.Errorf("destruct share: %w", err)
	}
	return applied(res)
}

// FailShare moves a live share to expired and records why.
func (s *Store) FailShare(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	ts := millis(now)
	res, err := s.exec(ctx, `
		UPDATE shares SET status = 'expired', expired_at = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status IN ('active', 'viewed')
	`, ts, nullString(reason), ts, id)
	if err != nil {
		return false, fmt.Errorf("fail share: %w", err)
	}
	return applied(res)
}

// ListSharesBySender returns the sender's shares in the given statuses,
// newest first. An empty statuses slice matches every status.
func (s *Store) ListSharesBySender(ctx context.Context, senderID int64, statuses []share.Status, limit, offset int) ([]*share.Share, error) {
	where, args := senderFilter(senderID, statuses)
	args = append(args, limit, offset)

	rows, err := s.query(ctx, `SELECT `+shareColumns+` FROM shares WHERE `+where+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	return collectShares(rows)
}

// CountSharesBySender counts the sender's shares in the given statuses.
func (s *Store) CountSharesBySender(ctx context.Context, senderID int64, statuses []share.Status) (int, error) {
	where, args := senderFilter(senderID, statuses)
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM shares WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count shares: %w", err)
	}
	return n, nil
}

// ListLiveShares returns the sender's active and viewed shares that are
// not past their expiry at now, newest first.
func (s *Store) ListLiveShares(ctx context.Context, senderID int64, now time.Time, limit, offset int) ([]*share.Share, error) {
	rows, err := s.query(ctx, `SELECT `+shareColumns+` FROM shares WHERE `+liveFilter+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, senderID, millis(now), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list live shares: %w", err)
	}
	return collectShares(rows)
}

// CountLiveShares counts what ListLiveShares would return without paging.
func (s *Store) CountLiveShares(ctx context.Context, senderID int64, now time.Time) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM shares WHERE `+liveFilter, senderID, millis(now)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count live shares: %w", err)
	}
	return n, nil
}

// ListOverdueShares returns live shares whose expires_at is at or before now.
func (s *Store) ListOverdueShares(ctx context.Context, now time.Time, limit int) ([]*share.Share, error) {
	rows, err := s.query(ctx, `SELECT `+shareColumns+` FROM shares
		WHERE status IN ('active', 'viewed') AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC LIMIT ?`, millis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue shares: %w", err)
	}
	return collectShares(rows)
}

// DeleteShare physically removes a share. Not part of the normal lifecycle.
func (s *Store) DeleteShare(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM shares WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete share: %w", err)
	}
	return applied(res)
}

const liveFilter = `sender_id = ? AND status IN ('active', 'viewed')
	AND (expires_at IS NULL OR expires_at > ?)`

func senderFilter(senderID int64, statuses []share.Status) (string, []any) {
	args := []any{senderID}
	if len(statuses) == 0 {
		return "sender_id = ?", args
	}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return "sender_id = ? AND status IN (" + placeholders(len(statuses)) + ")", args
}

func collectShares(rows *sql.Rows) ([]*share.Share, error) {
	defer rows.Close()

	var out []*share.Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return out, nil
}

func applied(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
