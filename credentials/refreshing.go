package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/harborpoint/policykit/clock"
)

// RefreshingConfig configures the Refreshing wrapper.
type RefreshingConfig struct {
	// Source is the underlying provider being wrapped.
	Source Provider

	// Leeway is how close to its JWT expiry a token may be before it is
	// proactively refreshed instead of served.
	// Default: 30 seconds
	Leeway time.Duration

	// Clock is the time source for expiry checks. Default: clock.Real().
	Clock clock.Clock
}

// Refreshing wraps a Provider with two behaviors the raw provider does not
// guarantee:
//
//   - concurrent Refresh calls collapse into a single upstream refresh, so a
//     burst of 401s cannot stampede the token endpoint;
//   - when the current token is a JWT whose exp claim is within the leeway
//     window, AccessToken refreshes proactively instead of handing out a
//     token that will be rejected mid-flight.
//
// Opaque (non-JWT) tokens are served as-is; expiry handling for those relies
// on the request client's 401-refresh path.
type Refreshing struct {
	config  RefreshingConfig
	sfGroup singleflight.Group
}

// NewRefreshing creates a new refreshing provider wrapper.
func NewRefreshing(config RefreshingConfig) (*Refreshing, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("credentials: source provider is required")
	}
	// Apply defaults
	if config.Leeway <= 0 {
		config.Leeway = 30 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &Refreshing{config: config}, nil
}

// AccessToken returns the current token, refreshing first when the token is
// a JWT about to expire.
func (r *Refreshing) AccessToken(ctx context.Context) (string, error) {
	token, err := r.config.Source.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	if r.expiresSoon(token) {
		return r.Refresh(ctx)
	}
	return token, nil
}

// Refresh obtains a new token. Overlapping callers share one upstream call.
func (r *Refreshing) Refresh(ctx context.Context) (string, error) {
	v, err, _ := r.sfGroup.Do("refresh", func() (any, error) {
		token, err := r.config.Source.Refresh(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// expiresSoon reports whether the token is a JWT expiring within the leeway
// window. The claim is read unverified: signature validation is the server's
// job, the client only needs the timestamp.
func (r *Refreshing) expiresSoon(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return r.config.Clock.Now().Add(r.config.Leeway).After(exp.Time)
}

// Ensure Refreshing implements Provider
var _ Provider = (*Refreshing)(nil)
