package stake

import (
	"fmt"
	"sync"
)

// RequestState tracks a single stake or unstake submission as seen by the client.
type RequestState int

const (
	StateIdle RequestState = iota
	StateSubmitting
	StateConfirmed
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s RequestState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RequestState) UnmarshalText(text []byte) error {
	parsed, err := ParseRequestState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseRequestState(name string) (RequestState, error) {
	for _, state := range []RequestState{StateIdle, StateSubmitting, StateConfirmed, StateFailed} {
		if state.String() == name {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown request state:%q", name)
}

// Request is the Idle -> Submitting -> {Confirmed, Failed} -> Idle machine for one action. There is no retry,
// a failed request just goes back to idle and the user has to start again.
type Request struct {
	Action Action

	mu    sync.Mutex
	state RequestState
	err   error
}

func NewRequest(action Action) *Request {
	return &Request{Action: action}
}

func (r *Request) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error of the last failed submission, if any.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Request) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateSubmitting {
		return fmt.Errorf("%s request already submitting", r.Action)
	}
	r.state = StateSubmitting
	r.err = nil
	return nil
}

// Complete moves a submitting request to confirmed or failed depending on err.
func (r *Request) Complete(err error) RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSubmitting {
		return r.state
	}
	if err != nil {
		r.state = StateFailed
		r.err = err
	} else {
		r.state = StateConfirmed
	}
	return r.state
}

// Reset returns a finished request to idle, keeping the last error available via Err.
func (r *Request) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSubmitting {
		r.state = StateIdle
	}
}
