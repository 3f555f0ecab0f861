package credentials

import "time"

// Record is the credential pair persisted between page loads / process runs.
// It is written and cleared as a whole; no caller mutates individual fields
// in place.
type Record struct {
	// AccessToken is the short-lived bearer credential attached to requests.
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is the long-lived credential used solely to obtain a new
	// access token. It may outlive the access token.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is the absolute expiry of AccessToken. Present exactly when
	// AccessToken is present.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsEmpty reports whether no credential of any kind is stored.
func (r Record) IsEmpty() bool {
	return r.AccessToken == "" && r.RefreshToken == ""
}

// HasAccessToken reports whether an access token with a known expiry is present.
func (r Record) HasAccessToken() bool {
	return r.AccessToken != "" && !r.ExpiresAt.IsZero()
}

// FreshAt reports whether the access token is still usable at the given
// instant, with margin subtracted from the real expiry so renewal can be
// triggered before the token actually lapses.
func (r Record) FreshAt(now time.Time, margin time.Duration) bool {
	if !r.HasAccessToken() {
		return false
	}
	return now.Add(margin).Before(r.ExpiresAt)
}
