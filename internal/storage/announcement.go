package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AnnouncementState is the rotation position of one chat.
type AnnouncementState struct {
	ChatID        string
	NextIndex     int
	LastMessageID string
	LastPostedAt  time.Time
}

// GetAnnouncementState returns nil when the chat has no announcement yet.
func (s *Storage) GetAnnouncementState(chatID string) (*AnnouncementState, error) {
	var (
		state     AnnouncementState
		messageID sql.NullString
		postedAt  sql.NullTime
	)
	err := s.db.QueryRow(`
		SELECT chat_id, next_index, last_message_id, last_posted_at
		FROM announcement_state
		WHERE chat_id = ?
	`, chatID).Scan(
		&state.ChatID,
		&state.NextIndex,
		&messageID,
		&postedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get announcement state: %w", err)
	}

	state.LastMessageID = messageID.String
	state.LastPostedAt = postedAt.Time
	return &state, nil
}

// NextAnnouncementIndex is the rotation index to post next; zero for a chat
// never announced to.
func (s *Storage) NextAnnouncementIndex(chatID string) (int, error) {
	state, err := s.GetAnnouncementState(chatID)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	return state.NextIndex, nil
}

// SaveAnnouncement records a posted announcement and the index to use next.
func (s *Storage) SaveAnnouncement(chatID string, nextIndex int, messageID string, postedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO announcement_state (chat_id, next_index, last_message_id, last_posted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			next_index = excluded.next_index,
			last_message_id = excluded.last_message_id,
			last_posted_at = excluded.last_posted_at
	`, chatID, nextIndex, messageID, postedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save announcement state: %w", err)
	}
	return nil
}
