package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathieu-neron/chanwatch/internal/model"
	"github.com/mathieu-neron/chanwatch/internal/service"
)

// Controller is the orchestrator as seen by the control surface.
type Controller interface {
	Ready() bool
	Primary() string
	Add(channel string) error
	Remove(channel string) error
	Change(channel string) error
	List() []model.WorkerState
	Status(channel string) (model.WorkerState, error)
}

// DefaultTimeout bounds every command, whatever the workers are doing.
const DefaultTimeout = 5 * time.Second

// Surface turns Commands into Controller calls and renders plain-text replies.
// It is created before the orchestrator exists; until Attach is called every
// command except help fails with service.ErrNotReady.
type Surface struct {
	ctrl    atomic.Pointer[Controller]
	timeout time.Duration
	log     zerolog.Logger

	exitOnce sync.Once
	onExit   atomic.Pointer[func()]
}

func NewSurface(timeout time.Duration, log zerolog.Logger) *Surface {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Surface{
		timeout: timeout,
		log:     log.With().Str("component", "control").Logger(),
	}
}

// Attach publishes the controller to concurrent callers.
func (s *Surface) Attach(c Controller) {
	s.ctrl.Store(&c)
}

// OnExit registers the callback run (once) by the exit command. It may be
// called while commands are being served.
func (s *Surface) OnExit(fn func()) {
	s.onExit.Store(&fn)
}

// Ready reports whether a ready controller is attached.
func (s *Surface) Ready() bool {
	c := s.controller()
	return c != nil && c.Ready()
}

func (s *Surface) controller() Controller {
	p := s.ctrl.Load()
	if p == nil {
		return nil
	}
	return *p
}

// ExecuteLine parses and executes one text command.
func (s *Surface) ExecuteLine(ctx context.Context, line string) (Command, string, error) {
	cmd, err := Parse(line)
	if err != nil {
		return cmd, Usage(), err
	}
	reply, err := s.Execute(ctx, cmd)
	return cmd, reply, err
}

// Execute runs cmd and returns the reply text. Calls that outlive the surface
// timeout return context.DeadlineExceeded; the underlying command still
// completes in the background.
func (s *Surface) Execute(ctx context.Context, cmd Command) (string, error) {
	if cmd.Kind == KindHelp {
		return Usage(), nil
	}
	c := s.controller()
	if c == nil || !c.Ready() {
		return "", service.ErrNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := s.dispatch(c, cmd)
		done <- result{reply, err}
	}()

	select {
	case r := <-done:
		s.logResult(cmd, r.err)
		return r.reply, r.err
	case <-ctx.Done():
		s.log.Warn().Str("command", cmd.Kind.String()).Str("channel", cmd.Channel).Msg("command timed out")
		return "", ctx.Err()
	}
}

func (s *Surface) dispatch(c Controller, cmd Command) (string, error) {
	switch cmd.Kind {
	case KindStatus:
		if cmd.Channel == "" {
			return fmt.Sprintf("Canal principal: %s\n", c.Primary()), nil
		}
		st, err := c.Status(cmd.Channel)
		if err != nil {
			return "", err
		}
		return RenderState(st), nil
	case KindList:
		return RenderList(c.List()), nil
	case KindAdd:
		if err := c.Add(cmd.Channel); err != nil {
			return "", err
		}
		return fmt.Sprintf("Viendo %s\n", strings.ToLower(cmd.Channel)), nil
	case KindRemove:
		if err := c.Remove(cmd.Channel); err != nil {
			return "", err
		}
		return fmt.Sprintf("Se dejó de ver %s\n", strings.ToLower(cmd.Channel)), nil
	case KindChange:
		if err := c.Change(cmd.Channel); err != nil {
			return "", err
		}
		return fmt.Sprintf("Canal principal cambiado a %s\n", strings.ToLower(cmd.Channel)), nil
	case KindExit:
		s.exitOnce.Do(func() {
			if fn := s.onExit.Load(); fn != nil && *fn != nil {
				(*fn)()
			}
		})
		return "Deteniendo el bot...\n", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Kind)
	}
}

func (s *Surface) logResult(cmd Command, err error) {
	switch cmd.Kind {
	case KindAdd, KindRemove, KindChange, KindExit:
	default:
		return
	}
	evt := s.log.Info()
	if err != nil {
		evt = s.log.Warn().Err(err)
	}
	evt.Str("command", cmd.Kind.String()).Str("channel", cmd.Channel).Msg("control command")
}

// RenderList formats the worker table as "- <channel>: <points> puntos totales" lines.
func RenderList(states []model.WorkerState) string {
	if len(states) == 0 {
		return "No se está viendo ningún canal\n"
	}
	var b strings.Builder
	for _, st := range states {
		fmt.Fprintf(&b, "- %s: %.2f puntos totales\n", st.Channel, st.TotalPoints())
	}
	return b.String()
}

// RenderState formats one worker's status.
func RenderState(st model.WorkerState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Canal: %s", st.Channel)
	if st.Primary {
		b.WriteString(" (principal)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Estado: %s\n", st.State)
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Tiempo Activo: %.2f minutos\n", time.Since(st.StartedAt).Minutes())
	}
	fmt.Fprintf(&b, "Puntos Por Visualizar: %.2f\n", st.ViewingPoints)
	fmt.Fprintf(&b, "Puntos Reclamados: %.2f\n", st.ClaimedPoints)
	fmt.Fprintf(&b, "Total Puntos: %.2f\n", st.TotalPoints())
	if st.RetryCount > 0 {
		fmt.Fprintf(&b, "Reintentos: %d\n", st.RetryCount)
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "Último error: %s\n", st.LastError)
	}
	return b.String()
}

// IsUserError reports whether err is a rejected command rather than a failure.
func IsUserError(err error) bool {
	return errors.Is(err, service.ErrCapacityExceeded) ||
		errors.Is(err, service.ErrAlreadyWatching) ||
		errors.Is(err, service.ErrNotWatching) ||
		errors.Is(err, service.ErrProtectedChannel) ||
		errors.Is(err, model.ErrChannelRequired) ||
		errors.Is(err, model.ErrChannelTooLong) ||
		errors.Is(err, model.ErrChannelInvalid) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrMissingArgument)
}
