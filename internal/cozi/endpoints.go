package cozi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultBaseURL is the production Cozi REST endpoint.
	DefaultBaseURL = "https://rest.cozi.com/"

	// APIVersion2004 serves lists, people, calendar months and most items.
	APIVersion2004 = "2004"

	// APIVersion2207 serves authentication and newer calendar items.
	APIVersion2207 = "2207"
)

// DefaultItemVersions is the order in which item lookups try API versions.
var DefaultItemVersions = []string{APIVersion2004, APIVersion2207}

// Operation names used in errors, logs, metrics and spans.
const (
	OpLogin         = "auth.login"
	OpListLists     = "lists.list"
	OpGetList       = "lists.get"
	OpPeople        = "people.list"
	OpCalendarMonth = "calendar.month"
	OpCalendarItem  = "calendar.item"
	OpCalendarYear  = "calendar.year"
	OpCalendarWeek  = "calendar.week"
	OpCalendarDay   = "calendar.day"
	OpCalendarRange = "calendar.range"
)

const loginPath = "api/ext/" + APIVersion2207 + "/auth/login"

func listsPath(accountID string) string {
	return fmt.Sprintf("api/ext/%s/%s/list/", APIVersion2004, url.PathEscape(accountID))
}

func listPath(accountID, listID string) string {
	return fmt.Sprintf("api/ext/%s/%s/list/%s", APIVersion2004, url.PathEscape(accountID), url.PathEscape(listID))
}

func peoplePath(accountID string) string {
	return fmt.Sprintf("api/ext/%s/%s/account/person/", APIVersion2004, url.PathEscape(accountID))
}

func monthPath(accountID string, year, month int) string {
	return fmt.Sprintf("api/ext/%s/%s/calendar/%04d/%02d", APIVersion2004, url.PathEscape(accountID), year, month)
}

func itemPath(version, accountID, itemID string) string {
	return fmt.Sprintf("api/ext/%s/%s/calendar/item/%s", version, url.PathEscape(accountID), url.PathEscape(itemID))
}

// normalizeBaseURL validates raw and guarantees a trailing slash so relative
// paths can be appended directly.
func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return DefaultBaseURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", raw)
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw, nil
}

// newRequest builds a request against base+rel with the standard headers.
func newRequest(ctx context.Context, method, base, rel, userAgent string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+rel, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
