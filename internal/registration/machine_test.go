package registration_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/echowrite/internal/registration"
)

type recorder struct {
	calls []string
}

func (r *recorder) probe(name string, answer bool) registration.Probe {
	return func(context.Context) (bool, error) {
		r.calls = append(r.calls, name)
		return answer, nil
	}
}

func TestSignupChecksEmailBeforeUsername(t *testing.T) {
	rec := &recorder{}
	out, err := registration.Signup(context.Background(), registration.SignupProbes{
		EmailRegistered:     rec.probe("email", true),
		RegistrationPending: rec.probe("pending", false),
		UsernameTaken:       rec.probe("username", true),
	})
	require.NoError(t, err)
	require.False(t, out.OK())
	require.Equal(t, registration.ReasonEmailTaken, out.Reason)
	require.Equal(t, []string{"email"}, rec.calls)
	require.Zero(t, out.Effects)
}

func TestSignupRejectsPendingRegistration(t *testing.T) {
	rec := &recorder{}
	out, err := registration.Signup(context.Background(), registration.SignupProbes{
		EmailRegistered:     rec.probe("email", false),
		RegistrationPending: rec.probe("pending", true),
		UsernameTaken:       rec.probe("username", false),
	})
	require.NoError(t, err)
	require.Equal(t, registration.ReasonRegistrationPending, out.Reason)
	require.Equal(t, registration.PendingVerification, out.To)
	require.Equal(t, []string{"email", "pending"}, rec.calls)
}

func TestSignupUsernameTaken(t *testing.T) {
	rec := &recorder{}
	out, err := registration.Signup(context.Background(), registration.SignupProbes{
		EmailRegistered:     rec.probe("email", false),
		RegistrationPending: rec.probe("pending", false),
		UsernameTaken:       rec.probe("username", true),
	})
	require.NoError(t, err)
	require.Equal(t, registration.ReasonUsernameTaken, out.Reason)
	require.Equal(t, registration.NoAccount, out.To)
	require.Equal(t, []string{"email", "pending", "username"}, rec.calls)
}

func TestSignupSuccessEffects(t *testing.T) {
	rec := &recorder{}
	out, err := registration.Signup(context.Background(), registration.SignupProbes{
		EmailRegistered:     rec.probe("email", false),
		RegistrationPending: rec.probe("pending", false),
		UsernameTaken:       rec.probe("username", false),
	})
	require.NoError(t, err)
	require.True(t, out.OK())
	require.Equal(t, registration.PendingVerification, out.To)
	require.True(t, out.Has(registration.MintCode|registration.StoreCode|registration.StorePending|registration.StartCooldown|registration.SendCode))
	require.False(t, out.Has(registration.CreateUser))
}

func TestSignupPropagatesProbeError(t *testing.T) {
	boom := errors.New("boom")
	_, err := registration.Signup(context.Background(), registration.SignupProbes{
		EmailRegistered: func(context.Context) (bool, error) { return false, boom },
	})
	require.ErrorIs(t, err, boom)
}

func TestSignupMissingProbe(t *testing.T) {
	_, err := registration.Signup(context.Background(), registration.SignupProbes{})
	require.Error(t, err)
}

func TestVerifyTransitions(t *testing.T) {
	cases := []struct {
		name     string
		code     bool
		pending  bool
		taken    bool
		reason   registration.Reason
		to       registration.State
		effects  registration.Effect
		consults []string
	}{
		{
			name:     "code mismatch",
			code:     false,
			reason:   registration.ReasonCodeInvalid,
			to:       registration.PendingVerification,
			consults: []string{"code"},
		},
		{
			name:     "session expired",
			code:     true,
			pending:  false,
			reason:   registration.ReasonSessionExpired,
			to:       registration.NoAccount,
			consults: []string{"code", "pending"},
		},
		{
			name:     "username claimed meanwhile",
			code:     true,
			pending:  true,
			taken:    true,
			reason:   registration.ReasonUsernameClaimed,
			to:       registration.NoAccount,
			effects:  registration.ConsumeCode | registration.DropPending,
			consults: []string{"code", "pending", "username"},
		},
		{
			name:     "verified",
			code:     true,
			pending:  true,
			reason:   registration.ReasonNone,
			to:       registration.Verified,
			effects:  registration.ConsumeCode | registration.DropPending | registration.CreateUser | registration.IssueToken,
			consults: []string{"code", "pending", "username"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			out, err := registration.Verify(context.Background(), registration.VerifyProbes{
				CodeMatches:   rec.probe("code", tc.code),
				PendingFound:  rec.probe("pending", tc.pending),
				UsernameTaken: rec.probe("username", tc.taken),
			})
			require.NoError(t, err)
			require.Equal(t, tc.reason, out.Reason)
			require.Equal(t, tc.to, out.To)
			require.Equal(t, tc.effects, out.Effects)
			require.Equal(t, tc.consults, rec.calls)
		})
	}
}

func TestResendCooldownShortCircuits(t *testing.T) {
	rec := &recorder{}
	out, err := registration.Resend(context.Background(), registration.ResendProbes{
		CooldownActive: rec.probe("cooldown", true),
		PendingFound:   rec.probe("pending", true),
		CodeFound:      rec.probe("code", true),
	})
	require.NoError(t, err)
	require.Equal(t, registration.ReasonCooldown, out.Reason)
	require.Zero(t, out.Effects)
	require.Equal(t, []string{"cooldown"}, rec.calls)
}

func TestResendWithoutPending(t *testing.T) {
	rec := &recorder{}
	out, err := registration.Resend(context.Background(), registration.ResendProbes{
		CooldownActive: rec.probe("cooldown", false),
		PendingFound:   rec.probe("pending", false),
		CodeFound:      rec.probe("code", true),
	})
	require.NoError(t, err)
	require.Equal(t, registration.ReasonSessionExpired, out.Reason)
	require.Equal(t, registration.NoAccount, out.To)
}

func TestResendReusesLiveCode(t *testing.T) {
	out, err := registration.Resend(context.Background(), registration.ResendProbes{
		CooldownActive: func(context.Context) (bool, error) { return false, nil },
		PendingFound:   func(context.Context) (bool, error) { return true, nil },
		CodeFound:      func(context.Context) (bool, error) { return true, nil },
	})
	require.NoError(t, err)
	require.True(t, out.OK())
	require.Equal(t, registration.StartCooldown|registration.SendCode, out.Effects)
	require.False(t, out.Has(registration.MintCode))
}

func TestResendMintsWhenCodeExpired(t *testing.T) {
	out, err := registration.Resend(context.Background(), registration.ResendProbes{
		CooldownActive: func(context.Context) (bool, error) { return false, nil },
		PendingFound:   func(context.Context) (bool, error) { return true, nil },
		CodeFound:      func(context.Context) (bool, error) { return false, nil },
	})
	require.NoError(t, err)
	require.True(t, out.Has(registration.MintCode|registration.StoreCode|registration.StartCooldown|registration.SendCode))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "pending_verification", registration.PendingVerification.String())
	require.Equal(t, "username_claimed", registration.ReasonUsernameClaimed.String())
}
