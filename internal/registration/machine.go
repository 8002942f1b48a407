// Package registration models the email signup lifecycle as an explicit state
// machine. Transitions are pure: callers hand in probes that read the stores and
// get back an Outcome naming the next state and the side effects to apply.
package registration

import (
	"context"
	"fmt"
)

// State is the lifecycle position of an email address.
type State int

const (
	NoAccount State = iota
	PendingVerification
	Verified
)

func (s State) String() string {
	switch s {
	case NoAccount:
		return "no_account"
	case PendingVerification:
		return "pending_verification"
	case Verified:
		return "verified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason explains why a transition was refused. ReasonNone means it succeeded.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonEmailTaken
	ReasonRegistrationPending
	ReasonUsernameTaken
	ReasonCodeInvalid
	ReasonSessionExpired
	ReasonUsernameClaimed
	ReasonCooldown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonEmailTaken:
		return "email_taken"
	case ReasonRegistrationPending:
		return "registration_pending"
	case ReasonUsernameTaken:
		return "username_taken"
	case ReasonCodeInvalid:
		return "code_invalid"
	case ReasonSessionExpired:
		return "session_expired"
	case ReasonUsernameClaimed:
		return "username_claimed"
	case ReasonCooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Effect is a side effect the caller must apply after a transition.
type Effect uint16

const (
	MintCode Effect = 1 << iota
	StoreCode
	StorePending
	StartCooldown
	SendCode
	ConsumeCode
	DropPending
	CreateUser
	IssueToken
)

// Outcome is the tagged result of a transition.
type Outcome struct {
	From    State
	To      State
	Reason  Reason
	Effects Effect
}

// OK reports whether the transition was accepted.
func (o Outcome) OK() bool { return o.Reason == ReasonNone }

// Has reports whether every effect in e is requested.
func (o Outcome) Has(e Effect) bool { return o.Effects&e == e }

// Probe answers a yes/no question against a store. Transitions call probes in a
// fixed order and stop at the first one that decides the outcome.
type Probe func(ctx context.Context) (bool, error)

// SignupProbes are consulted in field order.
type SignupProbes struct {
	EmailRegistered     Probe
	RegistrationPending Probe
	UsernameTaken       Probe
}

// Signup moves an unknown email into PendingVerification. The username is only
// checked once both email checks pass.
func Signup(ctx context.Context, p SignupProbes) (Outcome, error) {
	out := Outcome{From: NoAccount, To: NoAccount}

	taken, err := ask(ctx, p.EmailRegistered, "email registered")
	if err != nil {
		return out, err
	}
	if taken {
		out.Reason = ReasonEmailTaken
		return out, nil
	}

	pending, err := ask(ctx, p.RegistrationPending, "registration pending")
	if err != nil {
		return out, err
	}
	if pending {
		out.From = PendingVerification
		out.To = PendingVerification
		out.Reason = ReasonRegistrationPending
		return out, nil
	}

	claimed, err := ask(ctx, p.UsernameTaken, "username taken")
	if err != nil {
		return out, err
	}
	if claimed {
		out.Reason = ReasonUsernameTaken
		return out, nil
	}

	out.To = PendingVerification
	out.Effects = MintCode | StoreCode | StorePending | StartCooldown | SendCode
	return out, nil
}

// VerifyProbes are consulted in field order. CodeMatches must treat a missing
// code and a mismatched code the same way.
type VerifyProbes struct {
	CodeMatches   Probe
	PendingFound  Probe
	UsernameTaken Probe
}

// Verify promotes a pending registration to a durable account.
func Verify(ctx context.Context, p VerifyProbes) (Outcome, error) {
	out := Outcome{From: PendingVerification, To: PendingVerification}

	match, err := ask(ctx, p.CodeMatches, "code matches")
	if err != nil {
		return out, err
	}
	if !match {
		out.Reason = ReasonCodeInvalid
		return out, nil
	}

	found, err := ask(ctx, p.PendingFound, "pending found")
	if err != nil {
		return out, err
	}
	if !found {
		out.To = NoAccount
		out.Reason = ReasonSessionExpired
		return out, nil
	}

	claimed, err := ask(ctx, p.UsernameTaken, "username taken")
	if err != nil {
		return out, err
	}
	if claimed {
		out.To = NoAccount
		out.Reason = ReasonUsernameClaimed
		out.Effects = ConsumeCode | DropPending
		return out, nil
	}

	out.To = Verified
	out.Effects = ConsumeCode | DropPending | CreateUser | IssueToken
	return out, nil
}

// ResendProbes are consulted in field order.
type ResendProbes struct {
	CooldownActive Probe
	PendingFound   Probe
	CodeFound      Probe
}

// Resend re-delivers the active code, minting a new one only if it expired.
func Resend(ctx context.Context, p ResendProbes) (Outcome, error) {
	out := Outcome{From: PendingVerification, To: PendingVerification}

	cooling, err := ask(ctx, p.CooldownActive, "cooldown active")
	if err != nil {
		return out, err
	}
	if cooling {
		out.Reason = ReasonCooldown
		return out, nil
	}

	found, err := ask(ctx, p.PendingFound, "pending found")
	if err != nil {
		return out, err
	}
	if !found {
		out.From = NoAccount
		out.To = NoAccount
		out.Reason = ReasonSessionExpired
		return out, nil
	}

	active, err := ask(ctx, p.CodeFound, "code found")
	if err != nil {
		return out, err
	}
	out.Effects = StartCooldown | SendCode
	if !active {
		out.Effects |= MintCode | StoreCode
	}
	return out, nil
}

func ask(ctx context.Context, probe Probe, name string) (bool, error) {
	if probe == nil {
		return false, fmt.Errorf("registration: %s probe missing", name)
	}
	ok, err := probe(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return ok, nil
}
