package models

import "time"

type LobbyMessage struct {
	Id        string    `json:"id"`
	From      string    `json:"from"`
	Alias     string    `json:"alias"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const anonymous = `Anonymous`

// ParseLobbyMessage rejects messages without text
func ParseLobbyMessage(id string, n Node) (LobbyMessage, bool) {
	if n == nil || id == `` {
		return LobbyMessage{}, false
	}

	text := n.Str(`text`)
	if text == `` {
		return LobbyMessage{}, false
	}

	alias := n.Str(`alias`)
	if alias == `` {
		alias = anonymous
	}

	return LobbyMessage{
		Id:        id,
		From:      n.Str(`from`),
		Alias:     alias,
		Text:      text,
		Timestamp: n.Time(time.Now(), `timestamp`),
	}, true
}

func (m LobbyMessage) Node() Node {
	return Node{
		`from`:      m.From,
		`alias`:     m.Alias,
		`text`:      m.Text,
		`timestamp`: Millis(m.Timestamp),
	}
}

// ChatMessage is a pairwise message. Content is plaintext in local history
// and ciphertext on the wire when Encrypted is set.
type ChatMessage struct {
	Id        string    `json:"id"`
	From      string    `json:"from"`
	FromAlias string    `json:"fromAlias,omitempty"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Encrypted bool      `json:"encrypted"`
}

// ParseChatMessage rejects messages without content or parties
func ParseChatMessage(id string, n Node) (ChatMessage, bool) {
	if n == nil || id == `` {
		return ChatMessage{}, false
	}

	content, from := n.Str(`content`), n.Str(`from`)
	if content == `` || from == `` {
		return ChatMessage{}, false
	}

	return ChatMessage{
		Id:        id,
		From:      from,
		FromAlias: n.Str(`fromAlias`),
		To:        n.Str(`to`),
		Content:   content,
		Timestamp: n.Time(time.Now(), `timestamp`),
		Encrypted: n.Bool(`encrypted`),
	}, true
}

func (m ChatMessage) Node() Node {
	return Node{
		`from`:      m.From,
		`fromAlias`: m.FromAlias,
		`to`:        m.To,
		`content`:   m.Content,
		`timestamp`: Millis(m.Timestamp),
		`encrypted`: m.Encrypted,
	}
}
