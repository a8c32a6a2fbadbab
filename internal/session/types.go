package session

import "time"

// Exchange is one caller utterance and the assistant reply to it. Exchanges
// are immutable once appended.
type Exchange struct {
	Timestamp     string `json:"timestamp" bson:"timestamp"`
	Transcript    string `json:"transcript" bson:"transcript"`
	Response      string `json:"response" bson:"response"`
	AudioFile     string `json:"audio_file" bson:"audio_file"`
	ResponseAudio string `json:"response_audio,omitempty" bson:"response_audio,omitempty"`
	InDomain      bool   `json:"in_domain" bson:"in_domain"`
	Fallback      bool   `json:"fallback,omitempty" bson:"fallback,omitempty"`
}

// CallerInfo is attached when the session ends.
type CallerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type Session struct {
	ID             string     `json:"session_id"`
	Exchanges      []Exchange `json:"messages"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	Caller         CallerInfo `json:"caller_info"`
}
