// Package username checks and generates unique account handles.
package username

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

const (
	// MaxLength bounds generated and user-chosen handles.
	MaxLength = 30
	// MaxAttempts is the number of candidates looked up before giving up,
	// the unsuffixed base included.
	MaxAttempts = 10

	minLength = 3
	fallback  = "user"
	suffixLen = 5 // "-" plus four digits
)

// ErrExhausted is returned when every generated candidate was taken.
var ErrExhausted = errors.New("username: no free candidate found")

var (
	pattern   = regexp.MustCompile(`^[A-Za-z0-9._-]{3,30}$`)
	separator = regexp.MustCompile(`[^a-z0-9]+`)
)

// Valid reports whether s is acceptable as a user-chosen handle.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Lookup is the durable-store query the reconciler depends on.
type Lookup interface {
	UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error)
}

// Reconciler resolves username collisions against the durable store.
type Reconciler struct {
	lookup Lookup
	intn   func(n int) int
}

// NewReconciler returns a Reconciler backed by lookup.
func NewReconciler(lookup Lookup) *Reconciler {
	return &Reconciler{lookup: lookup, intn: rand.Intn}
}

// Exists reports whether candidate belongs to an account other than excludeID.
// It always reads the store.
func (r *Reconciler) Exists(ctx context.Context, candidate string, excludeID int64) (bool, error) {
	taken, err := r.lookup.UsernameExists(ctx, candidate, excludeID)
	if err != nil {
		return false, fmt.Errorf("lookup username: %w", err)
	}
	return taken, nil
}

// GenerateUnique derives a free handle from the first seed that normalizes to
// something non-empty. The base is tried first, then random numeric suffixes.
func (r *Reconciler) GenerateUnique(ctx context.Context, seeds ...string) (string, error) {
	base := Normalize(seeds...)

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = withSuffix(base, r.intn(10000))
		}
		taken, err := r.Exists(ctx, candidate, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts for %q", ErrExhausted, MaxAttempts, base)
}

// Normalize slugifies the first seed that yields at least three characters of
// [a-z0-9-]. An email address contributes only its local part.
func Normalize(seeds ...string) string {
	for _, seed := range seeds {
		if at := strings.IndexByte(seed, '@'); at >= 0 {
			seed = seed[:at]
		}
		s := separator.ReplaceAllString(slug.Make(seed), "-")
		if s = truncate(s, MaxLength); len(s) >= minLength {
			return s
		}
	}
	return fallback
}

func withSuffix(base string, n int) string {
	return fmt.Sprintf("%s-%04d", truncate(base, MaxLength-suffixLen), n)
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		s = s[:limit]
	}
	return strings.Trim(s, "-")
}
