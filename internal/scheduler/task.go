package scheduler

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies what a scheduled task does when it fires.
type Kind string

const (
	// KindExpireShare expires a share that is still active at its deadline.
	KindExpireShare Kind = "expire_share"
	// KindDeleteMessage removes a control message the transport sent.
	KindDeleteMessage Kind = "delete_message"
)

// Task is a persisted, time-deferred callback.
//
// Key is deterministic for a given (kind, share, chat, message), so
// scheduling the same key again replaces the pending run instead of adding
// a second one, and the key doubles as the cancellation handle.
type Task struct {
	Key       string    `json:"key"`
	Kind      Kind      `json:"kind"`
	RunAt     time.Time `json:"run_at"`
	ShareID   string    `json:"share_id,omitempty"`
	ChatID    int64     `json:"chat_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpireShareKey returns the task key for a share's expiry.
func ExpireShareKey(shareID string) string {
	return "exp_share_" + shareID
}

// DeleteMessageKey returns the task key for deleting chat/message.
// A task not tied to a share uses the literal suffix "timer".
func DeleteMessageKey(chatID, messageID int64, shareID string) string {
	suffix := shareID
	if suffix == "" {
		suffix = "timer"
	}
	return "del_msg_" + strconv.FormatInt(chatID, 10) + "_" + strconv.FormatInt(messageID, 10) + "_" + suffix
}

// ExpireShare builds an expiry task for shareID at runAt.
func ExpireShare(shareID string, runAt time.Time) Task {
	return Task{
		Key:     ExpireShareKey(shareID),
		Kind:    KindExpireShare,
		RunAt:   runAt,
		ShareID: shareID,
	}
}

// DeleteMessage builds a message deletion task. shareID may be empty.
func DeleteMessage(chatID, messageID int64, shareID string, runAt time.Time) Task {
	return Task{
		Key:       DeleteMessageKey(chatID, messageID, shareID),
		Kind:      KindDeleteMessage,
		RunAt:     runAt,
		ShareID:   shareID,
		ChatID:    chatID,
		MessageID: messageID,
	}
}

func (t Task) String() string {
	return fmt.Sprintf("%s@%s", t.Key, t.RunAt.Format(time.RFC3339))
}
