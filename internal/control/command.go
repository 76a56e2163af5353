package control

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of control commands.
type Kind int

const (
	KindHelp Kind = iota
	KindStatus
	KindList
	KindAdd
	KindRemove
	KindChange
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindHelp:
		return "help"
	case KindStatus:
		return "status"
	case KindList:
		return "list"
	case KindAdd:
		return "add"
	case KindRemove:
		return "remove"
	case KindChange:
		return "change"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing channel argument")
)

// Command is one parsed request. Channel is set for add, remove and change,
// and optionally for status.
type Command struct {
	Kind    Kind
	Channel string
}

var kinds = map[string]Kind{
	"help":   KindHelp,
	"status": KindStatus,
	"list":   KindList,
	"add":    KindAdd,
	"remove": KindRemove,
	"change": KindChange,
	"exit":   KindExit,
}

// Parse reads a text command line such as "add somechannel".
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}
	kind, ok := kinds[strings.ToLower(fields[0])]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}

	cmd := Command{Kind: kind}
	args := fields[1:]
	switch kind {
	case KindAdd, KindRemove, KindChange:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: usage: %s <canal>", ErrMissingArgument, kind)
		}
		cmd.Channel = args[0]
	case KindStatus:
		if len(args) > 1 {
			return Command{}, fmt.Errorf("%w: usage: status [canal]", ErrUnknownCommand)
		}
		if len(args) == 1 {
			cmd.Channel = args[0]
		}
	default:
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: %s takes no arguments", ErrUnknownCommand, kind)
		}
	}
	return cmd, nil
}

// Usage lists the available commands.
func Usage() string {
	return `Comandos disponibles:
help              - Muestra esta ayuda
status [canal]    - Muestra el canal principal o el estado de un canal
list              - Muestra los canales activos y sus puntos
add <canal>       - Empieza a ver un canal
remove <canal>    - Deja de ver un canal
change <canal>    - Cambia el canal principal
exit              - Detiene el bot
`
}
