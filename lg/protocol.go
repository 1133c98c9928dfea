package main

// ClientMessage is the envelope received from websocket clients.
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Target  string `json:"target,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Force   bool   `json:"force,omitempty"`
	Kill    bool   `json:"kill,omitempty"`
}

// ServerEvent is pushed to clients: replies to their own messages and the
// game notices they are allowed to see.
type ServerEvent struct {
	Type    string `json:"type"`
	Body    string `json:"body,omitempty"`
	Code    string `json:"code,omitempty"`
	Channel string `json:"channel,omitempty"`
	Persona string `json:"persona,omitempty"`
	State   any    `json:"state,omitempty"`
}

const (
	msgVote         = "vote"
	msgUnvote       = "unvote"
	msgDay          = "day"
	msgNight        = "night"
	msgStart        = "start"
	msgReset        = "reset"
	msgResetVotes   = "reset_votes"
	msgMostVoted    = "most_voted"
	msgInterview    = "interview"
	msgEndInterview = "end_interview"
	msgSpecial      = "special"
	msgPresentation = "presentation"
	msgStatus       = "status"
)

const (
	evOK       = "ok"
	evRejected = "rejected"
	evError    = "error"
	evNotice   = "notice"
)
