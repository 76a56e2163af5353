package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// RunConsole reads commands line by line from r and writes replies to w. It
// returns after the exit command, at end of input, or when ctx is done (checked
// between lines).
func RunConsole(ctx context.Context, s *Surface, r io.Reader, w io.Writer) error {
	fmt.Fprint(w, Usage())

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		cmd, reply, err := s.ExecuteLine(ctx, line)
		switch {
		case err != nil && reply != "":
			fmt.Fprintf(w, "Error: %v\n%s", err, reply)
		case err != nil:
			fmt.Fprintf(w, "Error: %v\n", err)
		default:
			fmt.Fprint(w, reply)
		}
		if err == nil && cmd.Kind == KindExit {
			return nil
		}
	}
	return sc.Err()
}
