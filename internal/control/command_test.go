package control

import (
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr error
	}{
		{"help", Command{Kind: KindHelp}, nil},
		{"status", Command{Kind: KindStatus}, nil},
		{"status mixwell", Command{Kind: KindStatus, Channel: "mixwell"}, nil},
		{"list", Command{Kind: KindList}, nil},
		{"  ADD   foo ", Command{Kind: KindAdd, Channel: "foo"}, nil},
		{"remove foo", Command{Kind: KindRemove, Channel: "foo"}, nil},
		{"change bar", Command{Kind: KindChange, Channel: "bar"}, nil},
		{"exit", Command{Kind: KindExit}, nil},
		{"", Command{}, ErrUnknownCommand},
		{"dance", Command{}, ErrUnknownCommand},
		{"add", Command{}, ErrMissingArgument},
		{"add a b", Command{}, ErrMissingArgument},
		{"list now", Command{}, ErrUnknownCommand},
		{"status a b", Command{}, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestUsageMentionsEveryCommand(t *testing.T) {
	u := Usage()
	for name := range kinds {
		if !strings.Contains(u, name) {
			t.Errorf("usage does not mention %q", name)
		}
	}
}
