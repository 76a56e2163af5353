// Package session defines the browser automation resource a ChannelWorker
// drives, and provides go-rod backed implementations of it.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrTransient marks a recoverable automation failure: timeouts, missing
	// or stale elements, navigation errors.
	ErrTransient = errors.New("transient automation error")

	// ErrStale means the page is no longer showing the expected channel.
	ErrStale = fmt.Errorf("%w: page left the channel", ErrTransient)

	// ErrResourceUnavailable means no browser could be reached at all.
	ErrResourceUnavailable = errors.New("automation resource unavailable")
)

// Factory creates sessions. Sessions are expensive; callers reuse them.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one logical page handle. Calls are slow and fallible, and
// every returned error wraps ErrTransient.
type Session interface {
	Navigate(ctx context.Context, channel string) error
	CurrentChannel(ctx context.Context) (string, error)
	// FindBonus reports whether a claimable bonus is on the page.
	FindBonus(ctx context.Context) (Element, bool, error)
	Close() error
}

// Element is a located UI element. It may go stale once the page changes.
type Element interface {
	Click(ctx context.Context) error
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

// ChannelURL joins the base URL and channel name.
func ChannelURL(base, channel string) string {
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(channel)
}

// ChannelFromURL extracts the channel segment from a page URL, lowercased.
// It returns "" when the URL has no channel path.
func ChannelFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	first, _, _ := strings.Cut(path, "/")
	return strings.ToLower(first)
}
