// Package board orchestrates message admission, deletion and client
// bootstrap across the history log, the attachment store and the hub.
package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lanboard/lanboard/internal/history"
	"github.com/lanboard/lanboard/internal/hub"
	"github.com/lanboard/lanboard/internal/metrics"
	"github.com/lanboard/lanboard/internal/store"
	"github.com/lanboard/lanboard/pkg/proto"
)

// Field caps applied at admission.
const (
	senderLimit = 30
	textLimit   = 5000
	nameLimit   = 120
)

// ErrForbidden is returned when the passphrase does not match.
var ErrForbidden = errors.New("forbidden")

// Service owns the registry, the log and the store. Every request-handling
// path mutates board state through it; there is no ambient global.
type Service struct {
	passphrase   string
	maxFileBytes int64 // 0 = unlimited

	history *history.Log
	store   *store.Store
	hub     *hub.Hub
	metrics *metrics.Board
}

// NewService wires the board service to its collaborators.
func NewService(passphrase string, maxFileBytes int64, h *history.Log, st *store.Store, hb *hub.Hub, m *metrics.Board) *Service {
	return &Service{
		passphrase:   passphrase,
		maxFileBytes: maxFileBytes,
		history:      h,
		store:        st,
		hub:          hb,
		metrics:      m,
	}
}

// Authorize checks the shared passphrase. A mismatch performs no operation
// and alters no state.
func (s *Service) Authorize(pass string) error {
	if pass != s.passphrase {
		return ErrForbidden
	}
	return nil
}

// AdmitMessage validates and admits a new message: server-assigned id and
// timestamp, capped sender/text, re-validated attachments. The message is
// appended to history and broadcast. A durability failure is returned after
// the broadcast; the in-memory state already holds the message.
func (s *Service) AdmitMessage(sender, text string, attachments []proto.Attachment) (proto.Message, error) {
	id := uuid.New()
	msg := proto.Message{
		ID:          strings.ReplaceAll(id.String(), "-", ""),
		Timestamp:   time.Now().UnixMilli(),
		Sender:      truncate(sender, senderLimit),
		Text:        truncate(text, textLimit),
		Attachments: s.cleanAttachments(attachments),
	}

	appendErr := s.history.Append(msg)
	if appendErr != nil {
		log.Error().Err(appendErr).Str("id", msg.ID).Msg("journal append failed")
	}

	s.broadcast(proto.MessageEvent{Type: proto.EventMessage, Item: msg})

	s.metrics.MessagesAdmitted.Inc()
	s.metrics.HistoryLength.Set(float64(s.history.Len()))

	log.Info().
		Str("id", msg.ID).
		Str("sender", msg.Sender).
		Int("attachments", len(msg.Attachments)).
		Msg("message admitted")

	if appendErr != nil {
		return msg, fmt.Errorf("persist message: %w", appendErr)
	}
	return msg, nil
}

// cleanAttachments re-validates client-declared attachment metadata against
// the store policy. Attachments failing URL or size checks are dropped; an
// invalid kind is coerced to "file" rather than rejecting the message.
func (s *Service) cleanAttachments(in []proto.Attachment) []proto.Attachment {
	clean := make([]proto.Attachment, 0, len(in))
	for _, a := range in {
		url := store.NormalizeURL(a.URL)
		if !store.IsUploadURL(url) {
			continue
		}
		if a.Size < 0 {
			continue
		}
		if s.maxFileBytes > 0 && a.Size > s.maxFileBytes {
			continue
		}
		name := truncate(a.Name, nameLimit)
		if name == "" {
			name = "file"
		}
		kind := a.Kind
		if !proto.ValidKind(kind) {
			kind = proto.KindFile
		}
		clean = append(clean, proto.Attachment{URL: url, Name: name, Size: a.Size, Kind: kind})
	}
	return clean
}

// DeleteMessage removes the message with the given id from history, deletes
// its attachment files best-effort, and broadcasts the removal. An unknown id
// reports zero effect without error.
func (s *Service) DeleteMessage(id string) (deleted bool, filesDeleted int, err error) {
	removed, err := s.history.Remove(id)
	if removed == nil {
		return false, 0, err
	}

	for _, a := range removed.Attachments {
		if s.store.DeleteByURL(a.URL) {
			filesDeleted++
		}
	}

	s.broadcast(proto.DeleteEvent{Type: proto.EventDelete, ID: id})

	s.metrics.MessagesDeleted.Inc()
	s.metrics.FilesDeleted.Add(float64(filesDeleted))
	s.metrics.HistoryLength.Set(float64(s.history.Len()))

	log.Info().Str("id", id).Int("files_deleted", filesDeleted).Msg("message deleted")
	return true, filesDeleted, err
}

// ClearBoard empties the history and purges the entire attachment store,
// referenced or not, then broadcasts the clear. Irreversible.
func (s *Service) ClearBoard() (filesDeleted int, err error) {
	err = s.history.Clear()
	filesDeleted = s.store.PurgeAll()

	s.broadcast(proto.ClearEvent{Type: proto.EventClear})

	s.metrics.BoardClears.Inc()
	s.metrics.FilesDeleted.Add(float64(filesDeleted))
	s.metrics.HistoryLength.Set(0)

	log.Info().Int("files_deleted", filesDeleted).Msg("board cleared")
	return filesDeleted, err
}

// BootstrapClient registers the client and queues the current history
// snapshot so the client sees it strictly before any later live event.
func (s *Service) BootstrapClient(c hub.Client) error {
	items := s.history.Snapshot()
	if items == nil {
		items = []proto.Message{}
	}
	greeting, err := json.Marshal(proto.HistoryEvent{Type: proto.EventHistory, Items: items})
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.hub.Bootstrap(c, greeting); err != nil {
		return err
	}
	s.metrics.ConnectedClients.Set(float64(s.hub.Count()))
	return nil
}

// DisconnectClient removes the client from the registry and closes it.
func (s *Service) DisconnectClient(c hub.Client) {
	s.hub.Unregister(c)
	c.Close()
	s.metrics.ConnectedClients.Set(float64(s.hub.Count()))
}

func (s *Service) broadcast(payload any) {
	before := s.hub.Count()
	if err := s.hub.Broadcast(payload); err != nil {
		log.Error().Err(err).Msg("broadcast encode failed")
		return
	}
	s.metrics.Broadcasts.Inc()
	if pruned := before - s.hub.Count(); pruned > 0 {
		s.metrics.ClientsPruned.Add(float64(pruned))
		s.metrics.ConnectedClients.Set(float64(s.hub.Count()))
	}
}

// truncate caps s at limit runes.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
