// ABOUTME: Card is a unit of board content with a threaded message body.
// ABOUTME: Cards live in a flat table; columns hold ordered references to them.
package board

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// MessageKind categorizes a threaded message within a card.
type MessageKind string

const (
	MessageNote       MessageKind = "note"
	MessageQuestion   MessageKind = "question"
	MessageAIResponse MessageKind = "ai_response"
)

// CardMessage is a single entry in a card's threaded body.
type CardMessage struct {
	MessageID ulid.ULID   `json:"message_id"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Card is a unit of content on the board. The body is a message thread;
// Summary, Tags, and CoverImage are optional presentation fields.
// ProcessedBy maps instruction-card ids to the timestamp of the last run
// that touched this card. It is a back-reference, never an ownership edge.
type Card struct {
	CardID      ulid.ULID                `json:"card_id"`
	Title       string                   `json:"title"`
	Messages    []CardMessage            `json:"messages"`
	Summary     string                   `json:"summary,omitempty"`
	Tags        []string                 `json:"tags,omitempty"`
	CoverImage  string                   `json:"cover_image,omitempty"`
	ProcessedBy map[ulid.ULID]time.Time  `json:"processed_by,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	CreatedBy   string                   `json:"created_by"`
}

// NewCard creates a Card with a single note message as its body.
func NewCard(title, body, createdBy string) Card {
	now := time.Now().UTC()
	card := Card{
		CardID:    NewULID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
	}
	if body != "" {
		card.Messages = []CardMessage{{
			MessageID: NewULID(),
			Kind:      MessageNote,
			Content:   body,
			CreatedAt: now,
		}}
	}
	return card
}

// Body returns the card's primary content: the content of the first note
// message, or the first message of any kind when no note exists.
func (c *Card) Body() string {
	for _, m := range c.Messages {
		if m.Kind == MessageNote {
			return m.Content
		}
	}
	if len(c.Messages) > 0 {
		return c.Messages[0].Content
	}
	return ""
}

// SetBody replaces the content of the first note message, inserting one at
// the front of the thread when the card has no note yet.
func (c *Card) SetBody(body string) {
	now := time.Now().UTC()
	for i := range c.Messages {
		if c.Messages[i].Kind == MessageNote {
			c.Messages[i].Content = body
			c.UpdatedAt = now
			return
		}
	}
	msg := CardMessage{
		MessageID: NewULID(),
		Kind:      MessageNote,
		Content:   body,
		CreatedAt: now,
	}
	c.Messages = append([]CardMessage{msg}, c.Messages...)
	c.UpdatedAt = now
}

// Excerpt returns the card's summary when present, otherwise its body.
// Used by the context builder, which applies its own truncation.
func (c *Card) Excerpt() string {
	if c.Summary != "" {
		return c.Summary
	}
	return c.Body()
}

// MarkProcessed stamps the card as touched by the given instruction.
func (c *Card) MarkProcessed(instructionID ulid.ULID, at time.Time) {
	if c.ProcessedBy == nil {
		c.ProcessedBy = make(map[ulid.ULID]time.Time)
	}
	c.ProcessedBy[instructionID] = at
}
