package model

import (
	"errors"
	"regexp"
	"strings"
)

// MaxChannelNameLen matches the platform's login-name limit.
const MaxChannelNameLen = 25

var (
	ErrChannelRequired = errors.New("channel name is required")
	ErrChannelTooLong  = errors.New("channel name must be at most 25 characters")
	ErrChannelInvalid  = errors.New("channel name contains invalid characters")
)

// channelNameRe matches login names: letters, digits and underscore.
var channelNameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// NormalizeChannel lowercases and trims a channel name and checks its form.
// Channel identity is case-insensitive, so every table key goes through here.
func NormalizeChannel(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "":
		return "", ErrChannelRequired
	case len(name) > MaxChannelNameLen:
		return "", ErrChannelTooLong
	case !channelNameRe.MatchString(name):
		return "", ErrChannelInvalid
	}
	return name, nil
}
