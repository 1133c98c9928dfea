package coordinator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
)

// Code is the machine-readable reason of a Rejection.
type Code string

const (
	CodeWrongPhase       Code = "wrong_phase"
	CodeWrongChannel     Code = "wrong_channel"
	CodeNoSession        Code = "no_session"
	CodeNotEligible      Code = "not_eligible"
	CodeNotAlive         Code = "not_alive"
	CodeAlreadyMarked    Code = "already_marked"
	CodeNothingToRetract Code = "nothing_to_retract"
	CodeNotReady         Code = "not_ready"
	CodeInterview        Code = "interview"
	CodeForbidden        Code = "forbidden"
)

// Rejection is a user-facing refusal. The game state is left unchanged when
// one is returned. Key and Args are handed to the localizer to build the
// reply.
type Rejection struct {
	Code Code
	Key  string
	Args []any
}

func (r *Rejection) Error() string {
	if len(r.Args) == 0 {
		return fmt.Sprintf("rejected (%s): %s", r.Code, r.Key)
	}
	return fmt.Sprintf("rejected (%s): %s %v", r.Code, r.Key, r.Args)
}

func reject(code Code, key string, args ...any) *Rejection {
	return &Rejection{Code: code, Key: key, Args: args}
}

// AsRejection returns the Rejection wrapped in err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// ConfigurationError reports channel roles discovery could not match to a
// platform channel. The guild cannot be played until they exist.
type ConfigurationError struct {
	Missing []game.ChannelRole
}

func (e *ConfigurationError) Error() string {
	names := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		names[i] = string(r)
	}
	return "unregistered channel roles: " + strings.Join(names, ", ")
}
