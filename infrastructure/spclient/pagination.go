package spclient

import "net/url"

// ExtractCursor pulls the opaque resume token out of a provider-supplied
// next/delta link. The delta endpoint hands tokens back in a `token`
// query parameter, listing endpoints in `$skiptoken`. Absent or
// malformed links yield the empty cursor.
func ExtractCursor(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	q := u.Query()
	if token := q.Get("token"); token != "" {
		return token
	}
	return q.Get("$skiptoken")
}
