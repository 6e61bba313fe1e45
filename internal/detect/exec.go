package detect

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/andresmejia3/hyperredact/internal/worker"
)

// ExecPrimitive delegates detection to an external process speaking the
// worker protocol. Requests are serialized over the one pipe pair.
type ExecPrimitive struct {
	mu   sync.Mutex
	proc *worker.DetectorProcess
}

// NewExecPrimitive starts the worker command and sends it a 1x1 frame, so a
// worker that cannot load its engine fails here instead of on the first frame.
func NewExecPrimitive(ctx context.Context, command []string) (*ExecPrimitive, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: exec engine needs a command", ErrConfiguration)
	}
	proc, err := worker.Start(ctx, 0, command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if _, err := proc.Detect(image.NewRGBA(image.Rect(0, 0, 1, 1)), 0); err != nil {
		// Wait for the worker so its stderr is complete.
		_ = proc.Close()
		if msg := strings.TrimSpace(proc.Cmd.Stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: worker %q did not start: %v\n%s", ErrConfiguration, command[0], err, msg)
		}
		return nil, fmt.Errorf("%w: worker %q did not start: %v", ErrConfiguration, command[0], err)
	}
	return &ExecPrimitive{proc: proc}, nil
}

func (e *ExecPrimitive) Detect(img image.Image, minNeighbors int) ([]image.Rectangle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rects, err := e.proc.Detect(img, minNeighbors)
	if err != nil && e.proc.Cmd != nil && e.proc.Cmd.Stderr.Len() > 0 {
		return nil, fmt.Errorf("%w\n%s", err, e.proc.Cmd.Stderr.String())
	}
	return rects, err
}

func (e *ExecPrimitive) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proc.Close()
}
