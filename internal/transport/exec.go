package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Runner executes a tool and returns what it wrote. When limit is positive,
// at most limit bytes of stdout are kept and the process is stopped once that
// many have been read.
type Runner func(ctx context.Context, limit int64, name string, args ...string) (stdout, stderr []byte, err error)

// execRunner is the default Runner backed by os/exec.
func execRunner(ctx context.Context, limit int64, name string, args ...string) ([]byte, []byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if limit <= 0 {
		out, err := cmd.Output()
		if err != nil {
			return out, stderr.Bytes(), fmt.Errorf("%s: %w", name, err)
		}
		return out, stderr.Bytes(), nil
	}

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%s stdout pipe: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", name, err)
	}

	buf := make([]byte, limit)
	n, readErr := io.ReadFull(pipe, buf)
	full := readErr == nil
	if full {
		// enough bytes; stop the transfer instead of draining the body
		cancel()
	}
	_, _ = io.Copy(io.Discard, pipe)
	waitErr := cmd.Wait()

	if full {
		return buf[:n], stderr.Bytes(), nil
	}
	if waitErr != nil {
		return buf[:n], stderr.Bytes(), fmt.Errorf("%s: %w", name, waitErr)
	}
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		return buf[:n], stderr.Bytes(), fmt.Errorf("read %s output: %w", name, readErr)
	}
	return buf[:n], stderr.Bytes(), nil
}
