package app

import (
	"net/url"
	"strings"
	"time"

	"scholarbridge/internal/pkg/jwtutil"
)

// ProfileLinks builds the document URL written back onto each record.
type ProfileLinks struct {
	baseURL string
	secret  string
	ttl     time.Duration
	sign    bool
}

func NewProfileLinks(baseURL, secret string, ttl time.Duration, sign bool) *ProfileLinks {
	return &ProfileLinks{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		ttl:     ttl,
		sign:    sign,
	}
}

// For returns "" when no public base URL is configured.
func (l *ProfileLinks) For(recordID string) (string, error) {
	if l == nil || l.baseURL == "" {
		return "", nil
	}
	link := l.baseURL + "/students/" + url.PathEscape(recordID) + "/profile.pdf"
	if !l.sign {
		return link, nil
	}
	token, err := jwtutil.GenerateLinkToken(l.secret, l.ttl, recordID)
	if err != nil {
		return "", err
	}
	return link + "?token=" + url.QueryEscape(token), nil
}
