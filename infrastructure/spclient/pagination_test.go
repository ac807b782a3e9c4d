package spclient

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCursor(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{
			name: "empty link",
			link: "",
			want: "",
		},
		{
			name: "delta token parameter",
			link: "https://graph.microsoft.com/v1.0/drives/d1/root/delta?token=abc123",
			want: "abc123",
		},
		{
			name: "skiptoken parameter",
			link: "https://graph.microsoft.com/v1.0/sites?$skiptoken=s%21xyz",
			want: "s!xyz",
		},
		{
			name: "token preferred over skiptoken",
			link: "https://x/delta?token=primary&$skiptoken=secondary",
			want: "primary",
		},
		{
			name: "link without cursor parameter",
			link: "https://graph.microsoft.com/v1.0/sites",
			want: "",
		},
		{
			name: "malformed url",
			link: "://not a url",
			want: "",
		},
		{
			name: "url-encoded token is decoded",
			link: "https://x/delta?token=a%2Bb%3Dc",
			want: "a+b=c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCursor(tt.link))
		})
	}
}

func TestExtractCursor_RoundTrip(t *testing.T) {
	cursors := []string{"plain", "with spaces and = signs", "s!AbC/123+xyz"}

	for _, cursor := range cursors {
		q := url.Values{}
		q.Set("token", cursor)
		link := "https://graph.microsoft.com/v1.0/drives/d/root/delta?" + q.Encode()

		assert.Equal(t, cursor, ExtractCursor(link))
		// Idempotent on re-extraction through a rebuilt link.
		q2 := url.Values{}
		q2.Set("token", ExtractCursor(link))
		assert.Equal(t, cursor, ExtractCursor("https://x/delta?"+q2.Encode()))
	}
}
