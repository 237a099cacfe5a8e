package board

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanboard/lanboard/internal/history"
	"github.com/lanboard/lanboard/internal/hub"
	"github.com/lanboard/lanboard/internal/metrics"
	"github.com/lanboard/lanboard/internal/store"
	"github.com/lanboard/lanboard/pkg/proto"
	"github.com/lanboard/lanboard/testutil"
)

type fakeClient struct {
	frames [][]byte
	closed bool
}

func (f *fakeClient) Send(data []byte) error {
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeClient) Close() { f.closed = true }

func newTestService(t *testing.T, maxFileBytes int64) (*Service, *store.Store, *hub.Hub, func()) {
	t.Helper()
	dir, cleanup := testutil.TempDir(t)

	st, err := store.New(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	h := history.New(filepath.Join(dir, "history.jsonl"), 100)
	hb := hub.New()
	svc := NewService("1234", maxFileBytes, h, st, hb, metrics.New())
	return svc, st, hb, cleanup
}

func TestAuthorize(t *testing.T) {
	svc, _, _, cleanup := newTestService(t, 0)
	defer cleanup()

	assert.NoError(t, svc.Authorize("1234"))
	assert.ErrorIs(t, svc.Authorize("wrong"), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(""), ErrForbidden)
}

func TestAdmitMessage(t *testing.T) {
	svc, _, _, cleanup := newTestService(t, 0)
	defer cleanup()

	msg, err := svc.AdmitMessage("PC", "hello", nil)
	require.NoError(t, err)

	assert.Len(t, msg.ID, 32)
	assert.NotContains(t, msg.ID, "-")
	assert.Positive(t, msg.Timestamp)
	assert.Equal(t, "PC", msg.Sender)
	assert.Equal(t, "hello", msg.Text)
	assert.Empty(t, msg.Attachments)
}

func TestAdmitMessage_CapsFields(t *testing.T) {
	svc, _, _, cleanup := newTestService(t, 0)
	defer cleanup()

	msg, err := svc.AdmitMessage(strings.Repeat("s", 100), strings.Repeat("t", 6000), nil)
	require.NoError(t, err)
	assert.Len(t, msg.Sender, senderLimit)
	assert.Len(t, msg.Text, textLimit)
}

func TestAdmitMessage_BroadcastsToClients(t *testing.T) {
	svc, _, hb, cleanup := newTestService(t, 0)
	defer cleanup()

	c := &fakeClient{}
	hb.Register(c)

	msg, err := svc.AdmitMessage("PC", "hello", nil)
	require.NoError(t, err)

	require.Len(t, c.frames, 1)
	var ev proto.MessageEvent
	require.NoError(t, json.Unmarshal(c.frames[0], &ev))
	assert.Equal(t, proto.EventMessage, ev.Type)
	assert.Equal(t, msg.ID, ev.Item.ID)
	assert.Equal(t, "hello", ev.Item.Text)
}

func TestAdmitMessage_AttachmentSizeCap(t *testing.T) {
	svc, _, _, cleanup := newTestService(t, 30<<20)
	defer cleanup()

	msg, err := svc.AdmitMessage("PC", "files", []proto.Attachment{
		{URL: "/uploads/2026-01-17/big.bin", Name: "big.bin", Size: 31 << 20, Kind: proto.KindFile},
		{URL: "/uploads/2026-01-17/ok.bin", Name: "ok.bin", Size: 29 << 20, Kind: proto.KindFile},
	})
	require.NoError(t, err)

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "ok.bin", msg.Attachments[0].Name)
}

func TestAdmitMessage_AttachmentValidation(t *testing.T) {
	svc, _, _, cleanup := newTestService(t, 0)
	defer cleanup()

	msg, err := svc.AdmitMessage("PC", "x", []proto.Attachment{
		{URL: "/etc/passwd", Name: "nope", Size: 1, Kind: proto.KindFile},
		{URL: "https://evil.example/uploads/x.png", Name: "hosted", Size: 1, Kind: proto.KindImage},
		{URL: "/uploads/2026-01-17/neg.bin", Name: "neg", Size: -1, Kind: proto.KindFile},
		{URL: "/uploads/2026-01-17/a.png", Name: "", Size: 5, Kind: "weird"},
		{URL: "/uploads/2026-01-17/b.png", Name: strings.Repeat("n", 200), Size: 5, Kind: proto.KindImage},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 3)

	// Host-qualified URLs are reduced to their path and admitted
	assert.Equal(t, "/uploads/x.png", msg.Attachments[0].URL)

	// Empty name defaults, invalid kind coerces to file
	assert.Equal(t, "file", msg.Attachments[1].Name)
	assert.Equal(t, proto.KindFile, msg.Attachments[1].Kind)

	// Overlong name is capped
	assert.Len(t, msg.Attachments[2].Name, nameLimit)
	assert.Equal(t, proto.KindImage, msg.Attachments[2].Kind)
}

func TestDeleteMessage(t *testing.T) {
	svc, st, _, cleanup := newTestService(t, 0)
	defer cleanup()

	att, err := st.Save("pic.png", strings.NewReader("pixels"))
	require.NoError(t, err)

	msg, err := svc.AdmitMessage("PC", "with file", []proto.Attachment{att})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)

	deleted, filesDeleted, err := svc.DeleteMessage(msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 1, filesDeleted)

	// Second delete of the same id reports zero effect
	deleted, filesDeleted, err = svc.DeleteMessage(msg.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 0, filesDeleted)

	// The attachment file itself is gone
	assert.False(t, st.DeleteByURL(att.URL))
}

func TestDeleteMessage_BroadcastsRemoval(t *testing.T) {
	svc, _, hb, cleanup := newTestService(t, 0)
	defer cleanup()

	msg, err := svc.AdmitMessage("PC", "bye", nil)
	require.NoError(t, err)

	c := &fakeClient{}
	hb.Register(c)

	_, _, err = svc.DeleteMessage(msg.ID)
	require.NoError(t, err)

	require.Len(t, c.frames, 1)
	var ev proto.DeleteEvent
	require.NoError(t, json.Unmarshal(c.frames[0], &ev))
	assert.Equal(t, proto.EventDelete, ev.Type)
	assert.Equal(t, msg.ID, ev.ID)
}

func TestClearBoard(t *testing.T) {
	svc, st, hb, cleanup := newTestService(t, 0)
	defer cleanup()

	att, err := st.Save("a.png", strings.NewReader("one"))
	require.NoError(t, err)
	_, err = st.Save("b.bin", strings.NewReader("two"))
	require.NoError(t, err)

	_, err = svc.AdmitMessage("PC", "msg", []proto.Attachment{att})
	require.NoError(t, err)

	c := &fakeClient{}
	hb.Register(c)

	filesDeleted, err := svc.ClearBoard()
	require.NoError(t, err)
	// Clear purges the whole store, unreferenced files included
	assert.Equal(t, 2, filesDeleted)

	_, err = svc.AdmitMessage("PC", "after", nil)
	require.NoError(t, err)
	snap := svc.history.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "after", snap[0].Text)

	var ev proto.ClearEvent
	require.NoError(t, json.Unmarshal(c.frames[0], &ev))
	assert.Equal(t, proto.EventClear, ev.Type)
}

func TestBootstrapClient(t *testing.T) {
	svc, _, hb, cleanup := newTestService(t, 0)
	defer cleanup()

	msg, err := svc.AdmitMessage("PC", "earlier", nil)
	require.NoError(t, err)

	c := &fakeClient{}
	require.NoError(t, svc.BootstrapClient(c))
	assert.Equal(t, 1, hb.Count())

	require.Len(t, c.frames, 1)
	var ev proto.HistoryEvent
	require.NoError(t, json.Unmarshal(c.frames[0], &ev))
	assert.Equal(t, proto.EventHistory, ev.Type)
	require.Len(t, ev.Items, 1)
	assert.Equal(t, msg.ID, ev.Items[0].ID)

	svc.DisconnectClient(c)
	assert.Equal(t, 0, hb.Count())
	assert.True(t, c.closed)
}

func TestBootstrapClient_EmptyHistory(t *testing.T) {
	svc, _, _, cleanup := newTestService(t, 0)
	defer cleanup()

	c := &fakeClient{}
	require.NoError(t, svc.BootstrapClient(c))

	require.Len(t, c.frames, 1)
	// "items" must be a JSON array even when empty, never null
	assert.Contains(t, string(c.frames[0]), `"items":[]`)
}
