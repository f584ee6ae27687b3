package hub

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/studyroom/announcement"
	"github.com/mcdev12/studyroom/go/internal/studyroom/authority"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/mcdev12/studyroom/go/internal/studyroom/timer"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Session is the per-connection identity the hub reads and updates. It is owned by the
// connection's read loop; Dispatch and Leave must be called from that loop only.
type Session struct {
	ConnectionID string
	UserID       string // empty until join unless Verified
	Verified     bool   // UserID came from a verified token and is never taken from a join payload
	RoomID       string // room of the last join

	joined []string // every room a join was posted to, in order
}

// Dispatch decodes one inbound frame and routes it to its room's mailbox. Host checks
// run here, before anything is enqueued, so a rejected command never touches room state.
// Frames without a known type or a room are logged and dropped; a known frame that fails
// validation is answered on its error channel.
func (h *Hub) Dispatch(ctx context.Context, s *Session, raw []byte) error {
	msg, err := events.DecodeClientMessage(raw)
	if err != nil {
		h.metrics.RecordDropped("malformed")
		log.Warn().Err(err).Str("connection_id", s.ConnectionID).Msg("dropping malformed frame")
		return nil
	}
	payload, err := events.ParsePayload(msg)
	if err != nil {
		return h.invalid(ctx, s, msg, err)
	}
	roomID, err := roomOf(payload)
	if err != nil {
		return err
	}

	if p, ok := payload.(*events.JoinPayload); ok {
		return h.join(ctx, s, p)
	}

	if !hostOnly(msg.Type) {
		return h.route(ctx, s, msg.Type, roomID, payload)
	}

	var routeErr error
	authority.Gate(ctx, h.auth, s.UserID, roomID,
		func(res authority.Result) { routeErr = h.reject(ctx, s, msg.Type, roomID, res) },
		func() { routeErr = h.route(ctx, s, msg.Type, roomID, payload) },
	)
	return routeErr
}

// route posts an accepted command to its room's mailbox.
func (h *Hub) route(ctx context.Context, s *Session, eventType events.EventType, roomID string, payload any) error {
	connectionID, userID := s.ConnectionID, s.UserID
	switch p := payload.(type) {
	case *events.RoomPayload:
		if eventType == events.EventTimerRequest {
			return h.post(ctx, roomID, string(eventType), func(ctx context.Context) {
				h.replySync(roomID, connectionID)
			})
		}
		return h.post(ctx, roomID, string(eventType), func(ctx context.Context) {
			h.clearAnnouncement(ctx, roomID, connectionID)
		})
	case *events.TimerControlPayload:
		return h.post(ctx, roomID, string(eventType), func(ctx context.Context) {
			h.applyTimer(roomID, eventType, p, userID)
		})
	case *events.SettingsUpdatePayload:
		return h.post(ctx, roomID, string(eventType), func(ctx context.Context) {
			h.updateSettings(ctx, roomID, connectionID, *p.Settings)
		})
	case *events.AnnouncementTextPayload:
		return h.post(ctx, roomID, string(eventType), func(ctx context.Context) {
			h.setAnnouncement(ctx, roomID, connectionID, p.Text)
		})
	case *events.ReactionPayload:
		if userID == "" {
			h.replyError(events.EventAnnouncementError, roomID, connectionID, msgJoinBeforeReacting)
			return nil
		}
		return h.post(ctx, roomID, string(eventType), func(ctx context.Context) {
			h.toggleReaction(ctx, roomID, connectionID, userID, p.Emoji)
		})
	}
	return nil
}

// invalid answers a frame whose payload failed to decode or validate. Without a readable
// room there is nobody to address, so the frame is only dropped.
func (h *Hub) invalid(ctx context.Context, s *Session, msg events.ClientMessage, cause error) error {
	h.metrics.RecordDropped("invalid_payload")
	log.Warn().Err(cause).Str("connection_id", s.ConnectionID).Str("event_type", string(msg.Type)).Msg("invalid payload")

	roomID := events.PeekRoomID(msg)
	if roomID == "" || msg.Type == events.EventJoin {
		return nil
	}
	connectionID, channel := s.ConnectionID, errorChannel(msg.Type)
	return h.post(ctx, roomID, "invalid", func(context.Context) {
		h.replyError(channel, roomID, connectionID, msgInvalidRequest)
	})
}

// Leave removes the session's connection from presence. It is idempotent.
// A leave is posted behind every join of the session, so a join still queued in a
// room's mailbox can never outlive the connection.
func (h *Hub) Leave(ctx context.Context, s *Session) error {
	connectionID := s.ConnectionID
	for _, roomID := range s.joined {
		err := h.post(ctx, roomID, "leave", func(ctx context.Context) {
			roster, removed := h.presence.Leave(roomID, connectionID)
			if !removed {
				return
			}
			h.broadcastRoster(roster)
		})
		if err != nil {
			return err
		}
	}
	s.joined = nil
	return nil
}

func (h *Hub) join(ctx context.Context, s *Session, p *events.JoinPayload) error {
	if !s.Verified {
		s.UserID = strings.TrimSpace(p.User.ID)
		if s.UserID == "" {
			s.UserID = s.ConnectionID
		}
	}
	s.RoomID = p.RoomID
	if !lo.Contains(s.joined, p.RoomID) {
		s.joined = append(s.joined, p.RoomID)
	}

	// The claimed isHost flag is ignored; the room record decides.
	res := h.auth.Check(ctx, s.UserID, p.RoomID)
	if res.Decision == authority.LookupFailed {
		log.Warn().Err(res.Err).Str("room_id", p.RoomID).Str("user_id", s.UserID).Msg("joining without host flag")
	}

	user := models.Participant{
		ID:        s.UserID,
		Name:      p.User.Name,
		AvatarURL: p.User.AvatarURL,
		IsHost:    res.Decision == authority.Authorized,
	}
	roomID, connectionID := p.RoomID, s.ConnectionID
	return h.post(ctx, roomID, string(events.EventJoin), func(ctx context.Context) {
		result := h.presence.Join(roomID, connectionID, user)
		h.broadcastRoster(result.Roster)

		if result.Previous != nil {
			prev := result.Previous.RoomID
			// Posted asynchronously so two full mailboxes can never wait on each other.
			go func() {
				if err := h.post(context.Background(), prev, "roster", func(context.Context) {
					h.broadcastRoster(h.presence.Roster(prev))
				}); err != nil && !errors.Is(err, ErrStopped) {
					log.Error().Err(err).Str("room_id", prev).Msg("failed to refresh previous room roster")
				}
			}()
		}
	})
}

func (h *Hub) reject(ctx context.Context, s *Session, eventType events.EventType, roomID string, res authority.Result) error {
	h.metrics.RecordRejected(string(eventType))
	log.Info().
		Str("room_id", roomID).
		Str("user_id", s.UserID).
		Str("event_type", string(eventType)).
		Str("decision", res.Decision.String()).
		Msg("host command rejected")

	h.replyError(errorChannel(eventType), roomID, s.ConnectionID, rejectionMessage(eventType, res))
	return nil
}

func (h *Hub) replySync(roomID, connectionID string) {
	out, err := syncReply(h.timers.GetOrInit(roomID), connectionID, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build timer sync")
		return
	}
	h.emit(out)
}

func (h *Hub) applyTimer(roomID string, eventType events.EventType, p *events.TimerControlPayload, userID string) {
	now := h.clock.Now()
	res := applyTimerCommand(h.timers.GetOrInit(roomID), eventType, p, userID, now)
	h.commitTimer(roomID, res, now)
}

// commitTimer stores a transition, keeps the expiry schedule in step with it and broadcasts.
func (h *Hub) commitTimer(roomID string, res timer.Result, now time.Time) {
	if !res.Changed {
		return
	}
	h.timers.Put(res.State)
	if res.State.IsRunning && res.State.EndAt != nil {
		h.scheduler.Schedule(roomID, *res.State.EndAt)
	} else {
		h.scheduler.Cancel(roomID)
	}

	outs, err := timerOutbound(roomID, res, now)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build timer events")
		return
	}
	h.emit(outs...)

	log.Debug().
		Str("room_id", roomID).
		Bool("running", res.State.IsRunning).
		Int("remaining_sec", timer.RemainingAt(res.State, now)).
		Bool("finished", res.Finished).
		Msg("timer transition")
}

// onTimerExpired is the scheduler callback. It runs on the timer goroutine and hands the
// finish to the room's mailbox; a timer that was paused, reset or restarted since is left alone.
func (h *Hub) onTimerExpired(roomID string, endAt time.Time) {
	err := h.post(context.Background(), roomID, "timer:expired", func(ctx context.Context) {
		state := h.timers.GetOrInit(roomID)
		if !state.IsRunning || state.EndAt == nil || !state.EndAt.Equal(endAt) {
			log.Debug().Str("room_id", roomID).Msg("ignoring stale timer expiry")
			return
		}
		h.commitTimer(roomID, timer.Finish(state), h.clock.Now())
	})
	if err != nil && !errors.Is(err, ErrStopped) {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to post timer expiry")
	}
}

func (h *Hub) updateSettings(ctx context.Context, roomID, connectionID string, update models.SettingsUpdate) {
	room, err := h.rooms.UpdateSettings(ctx, roomID, update.Apply)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to update room settings")
		h.replyError(events.EventTimerError, roomID, connectionID, msgSettingsFailed)
		return
	}

	out, err := settingsOutbound(room, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build settings event")
		return
	}
	h.emit(out)
}

func (h *Hub) setAnnouncement(ctx context.Context, roomID, connectionID, text string) {
	a, err := h.board.Set(ctx, roomID, text)
	if err != nil {
		h.announcementFailed(roomID, connectionID, err)
		return
	}
	h.broadcastAnnouncement(roomID, *a)
}

func (h *Hub) clearAnnouncement(ctx context.Context, roomID, connectionID string) {
	if err := h.board.Clear(ctx, roomID); err != nil {
		h.announcementFailed(roomID, connectionID, err)
		return
	}
	h.broadcastAnnouncement(roomID, announcement.Cleared())
}

func (h *Hub) toggleReaction(ctx context.Context, roomID, connectionID, userID, emoji string) {
	reactions, err := h.board.ToggleReaction(ctx, roomID, userID, emoji)
	if err != nil {
		h.announcementFailed(roomID, connectionID, err)
		return
	}
	out, err := reactionsOutbound(roomID, reactions, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build reaction event")
		return
	}
	h.emit(out)
}

func (h *Hub) announcementFailed(roomID, connectionID string, err error) {
	if errors.Is(err, announcement.ErrTextRequired) || errors.Is(err, announcement.ErrTextTooLong) ||
		errors.Is(err, announcement.ErrEmojiRequired) || errors.Is(err, announcement.ErrNoAnnouncement) ||
		errors.Is(err, rooms.ErrNotFound) {
		log.Debug().Err(err).Str("room_id", roomID).Msg("announcement request refused")
	} else {
		log.Error().Err(err).Str("room_id", roomID).Msg("announcement update failed")
	}
	h.replyError(events.EventAnnouncementError, roomID, connectionID, announcement.Message(err))
}

func (h *Hub) broadcastAnnouncement(roomID string, a models.Announcement) {
	out, err := announcementOutbound(roomID, a, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build announcement event")
		return
	}
	h.emit(out)
}

func (h *Hub) broadcastRoster(roster models.Roster) {
	out, err := rosterOutbound(roster, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roster.RoomID).Msg("failed to build presence event")
		return
	}
	h.emit(out)
}

func (h *Hub) replyError(eventType events.EventType, roomID, connectionID, message string) {
	out, err := errorReply(eventType, roomID, connectionID, message, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build error reply")
		return
	}
	h.emit(out)
}
