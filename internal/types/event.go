package types

import "regexp"

// DefaultRequester is used when an event does not name its requester.
const DefaultRequester = "desconhecido"

// Event is the validated representation of a webhook submission.
// Every field has already been sanitized; handlers treat it as a value.
type Event struct {
	RequesterID    string `json:"requesterId"`
	Context        string `json:"context"`
	Question       string `json:"question"`
	UserID         string `json:"userId"`
	AltUserID      string `json:"altUserId"`
	ConversationID string `json:"conversationId"`
	GeneratedReply string `json:"generatedReply"`
	SourceURL      string `json:"sourceUrl"`
}

// Field describes one accepted payload key, its legacy alias and its
// maximum length in characters.
type Field struct {
	Name   string
	Alias  string
	MaxLen int
}

// Fields lists every key an Event is built from.
var Fields = []Field{
	{Name: "requesterId", Alias: "solicitante", MaxLen: 100},
	{Name: "context", Alias: "contexto", MaxLen: 2000},
	{Name: "question", Alias: "pergunta", MaxLen: 1000},
	{Name: "userId", Alias: "user_id", MaxLen: 50},
	{Name: "altUserId", Alias: "id_usuario", MaxLen: 50},
	{Name: "conversationId", Alias: "id_conversa", MaxLen: 50},
	{Name: "generatedReply", Alias: "resposta_gemini", MaxLen: 4000},
	{Name: "sourceUrl", Alias: "url", MaxLen: 500},
}

// Set assigns value to the field with the given canonical name.
// It reports false for unknown names.
func (e *Event) Set(name, value string) bool {
	p := e.field(name)
	if p == nil {
		return false
	}
	*p = value
	return true
}

// Get returns the value of the field with the given canonical name.
func (e *Event) Get(name string) string {
	if p := e.field(name); p != nil {
		return *p
	}
	return ""
}

func (e *Event) field(name string) *string {
	switch name {
	case "requesterId":
		return &e.RequesterID
	case "context":
		return &e.Context
	case "question":
		return &e.Question
	case "userId":
		return &e.UserID
	case "altUserId":
		return &e.AltUserID
	case "conversationId":
		return &e.ConversationID
	case "generatedReply":
		return &e.GeneratedReply
	case "sourceUrl":
		return &e.SourceURL
	}
	return nil
}

// PrimaryUserID prefers the alternate user id, which is what the messaging
// platform fills in, and falls back to userId.
func (e Event) PrimaryUserID() string {
	if e.AltUserID != "" {
		return e.AltUserID
	}
	return e.UserID
}

// ReplyTarget picks the conversation a relayed reply goes to: the explicit
// conversation id, then userId, then altUserId.
func (e Event) ReplyTarget() string {
	switch {
	case e.ConversationID != "":
		return e.ConversationID
	case e.UserID != "":
		return e.UserID
	default:
		return e.AltUserID
	}
}

var idPattern = regexp.MustCompile(`[0-9]{7,}`)

// ExtractIDs returns every run of seven or more digits found in the
// primary user id. The result is never nil.
func (e Event) ExtractIDs() []string {
	ids := idPattern.FindAllString(e.PrimaryUserID(), -1)
	if ids == nil {
		return []string{}
	}
	return ids
}
