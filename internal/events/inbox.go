package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chess-tournaments/internal/domain"
)

// InboxSink writes one notification per participant for tournament events
type InboxSink struct {
	store domain.NotificationStore
}

// NewInboxSink creates a sink backed by the notification store
func NewInboxSink(store domain.NotificationStore) *InboxSink {
	return &InboxSink{store: store}
}

// Name implements Sink
func (s *InboxSink) Name() string {
	return "inbox"
}

// Handle implements Sink
func (s *InboxSink) Handle(ctx context.Context, event domain.Event) error {
	notifications := Notifications(event)
	if len(notifications) == 0 {
		return nil
	}
	if err := s.store.CreateNotifications(ctx, notifications); err != nil {
		return fmt.Errorf("storing %d notifications: %w", len(notifications), err)
	}
	return nil
}

// Notifications renders the inbox entries an event produces
func Notifications(event domain.Event) []domain.Notification {
	var (
		typ        domain.NotificationType
		title, msg string
		recipients []string
		matchID    string
	)

	switch data := event.Data.(type) {
	case domain.RoundAdvanced:
		recipients = data.Participants
		if event.Type == domain.EventTournamentStarted {
			typ = domain.NotificationTournamentStart
			title = fmt.Sprintf("%s has started", data.TournamentName)
			msg = fmt.Sprintf("Round 1 is ready with %d pairings. Good luck!", len(data.Pairings))
		} else {
			typ = domain.NotificationNewRound
			title = fmt.Sprintf("Round %d of %s", data.RoundNumber, data.TournamentName)
			msg = fmt.Sprintf("Round %d has started. Check your pairing.", data.RoundNumber)
		}
	case domain.TournamentCompleted:
		recipients = data.Participants
		typ = domain.NotificationTournamentEnd
		title = fmt.Sprintf("%s has finished", data.TournamentName)
		msg = "The tournament is complete."
		if data.WinnerID != "" {
			msg = fmt.Sprintf("The tournament is complete. Winner: %s.", data.WinnerID)
		}
	case domain.MatchReplay:
		recipients = []string{data.WhitePlayerID, data.BlackPlayerID}
		typ = domain.NotificationMatchReplay
		title = "Replay required"
		msg = fmt.Sprintf("Your round %d game was drawn and must be replayed.", data.RoundNumber)
		matchID = data.MatchID
	default:
		return nil
	}

	now := time.Now()
	out := make([]domain.Notification, 0, len(recipients))
	for _, playerID := range recipients {
		out = append(out, domain.Notification{
			ID:           uuid.NewString(),
			PlayerID:     playerID,
			Type:         typ,
			Title:        title,
			Message:      msg,
			TournamentID: event.TournamentID,
			MatchID:      matchID,
			CreatedAt:    now,
		})
	}
	return out
}
