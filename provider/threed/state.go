// Package threed drives the 3-D Secure payment flow as an explicit state
// machine over a caller-held Session.
package threed

import (
	"time"

	"github.com/mstgnz/gopos/provider"
)

// State is a step of the 3-D Secure flow.
type State string

const (
	StateInit                State = "INIT"
	StateEnrollmentCheckSent State = "ENROLLMENT_CHECK_SENT"
	StateNotEnrolled         State = "NOT_ENROLLED"
	StateRedirectedToACS     State = "REDIRECTED_TO_ACS"
	StateCallbackReceived    State = "CALLBACK_RECEIVED"
	StateHashVerified        State = "HASH_VERIFIED"
	StateFinalAuthSent       State = "FINAL_AUTH_SENT"
	StateAlreadySettled      State = "ALREADY_SETTLED"
	StateCompleted           State = "COMPLETED"
	StateSecurityRejected    State = "SECURITY_REJECTED"
)

// transitions lists every legal move. SECURITY_REJECTED and COMPLETED are
// terminal, so a rejected session can never complete. CALLBACK_RECEIVED
// goes straight to COMPLETED only for an unsigned decline.
var transitions = map[State][]State{
	StateInit:                {StateEnrollmentCheckSent, StateRedirectedToACS, StateFinalAuthSent},
	StateEnrollmentCheckSent: {StateNotEnrolled, StateRedirectedToACS},
	StateNotEnrolled:         {StateCompleted},
	StateRedirectedToACS:     {StateCallbackReceived},
	StateCallbackReceived:    {StateHashVerified, StateSecurityRejected, StateCompleted},
	StateHashVerified:        {StateFinalAuthSent, StateAlreadySettled, StateCompleted},
	StateFinalAuthSent:       {StateCompleted},
	StateAlreadySettled:      {StateCompleted},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one 3-D flow. It never holds card data; the callback payload
// is kept between HandleCallback and Finalize.
type Session struct {
	ID          string                   `json:"id"`
	MerchantKey string                   `json:"merchant_key,omitempty"`
	Gateway     string                   `json:"gateway"`
	Model       provider.SecurityModel   `json:"model"`
	TxType      provider.TransactionType `json:"tx_type"`
	Order       provider.Order           `json:"order"`
	State       State                    `json:"state"`
	History     []State                  `json:"history"`
	Callback    provider.GatewayResponse `json:"callback,omitempty"`
	Result      *provider.Result         `json:"result,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`

	// Merchant pages the card holder is sent to once the flow ends, set
	// when the order URLs point at the service callback instead.
	ReturnSuccessURL string `json:"return_success_url,omitempty"`
	ReturnFailURL    string `json:"return_fail_url,omitempty"`
}

func (s *Session) transition(to State, now time.Time) error {
	if !CanTransition(s.State, to) {
		return provider.Precondition("illegal 3D transition %s -> %s", s.State, to)
	}
	s.State = to
	s.History = append(s.History, to)
	s.UpdatedAt = now
	return nil
}

// Visited reports whether the session has ever been in state.
func (s *Session) Visited(state State) bool {
	for _, h := range s.History {
		if h == state {
			return true
		}
	}
	return false
}

// ReturnURL picks the merchant page for the session outcome. It is empty
// while the flow runs and when no return pages were recorded.
func (s *Session) ReturnURL() string {
	if !s.State.Terminal() {
		return ""
	}
	if s.Result != nil && s.Result.Approved() {
		return s.ReturnSuccessURL
	}
	return s.ReturnFailURL
}
