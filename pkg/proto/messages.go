// Package proto defines the shared wire types for the lanboard channel and API.
package proto

// Attachment kinds.
const (
	KindImage = "image"
	KindFile  = "file"
)

// Channel event types.
const (
	EventHistory = "history"
	EventMessage = "msg"
	EventDelete  = "delete"
	EventClear   = "clear"
	EventError   = "error"
)

// Attachment references a previously uploaded file embedded in a message.
type Attachment struct {
	URL  string `json:"url"`  // store-rooted path, e.g. /uploads/2026-08-26/abc.png
	Name string `json:"name"` // display filename, independent of the on-disk name
	Size int64  `json:"size"` // declared size in bytes
	Kind string `json:"kind"` // "image" or "file"
}

// Message is one posted unit of text and attachments. The id and timestamp
// are assigned by the server at admission and never trusted from the client.
type Message struct {
	ID          string       `json:"id"`
	Timestamp   int64        `json:"ts"` // milliseconds since epoch
	Sender      string       `json:"sender"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// InboundMessage is a client-submitted message from the realtime channel.
type InboundMessage struct {
	Type        string       `json:"type"`
	Pass        string       `json:"pass"`
	Sender      string       `json:"sender"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// HistoryEvent bootstraps a newly connected client with the full history.
type HistoryEvent struct {
	Type  string    `json:"type"`
	Items []Message `json:"items"`
}

// MessageEvent announces a newly admitted message.
type MessageEvent struct {
	Type string  `json:"type"`
	Item Message `json:"item"`
}

// DeleteEvent announces the removal of a single message.
type DeleteEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ClearEvent announces that the whole board was cleared.
type ClearEvent struct {
	Type string `json:"type"`
}

// ErrorEvent reports a failure to the single requesting connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DeleteResponse is returned by the message delete endpoint.
type DeleteResponse struct {
	OK           bool `json:"ok"`
	Deleted      int  `json:"deleted"`
	FilesDeleted int  `json:"files_deleted"`
}

// ClearResponse is returned by the board clear endpoint.
type ClearResponse struct {
	OK           bool `json:"ok"`
	FilesDeleted int  `json:"files_deleted"`
}

// ErrorResponse is the JSON error body for HTTP endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ValidKind reports whether k is one of the enumerated attachment kinds.
func ValidKind(k string) bool {
	return k == KindImage || k == KindFile
}
