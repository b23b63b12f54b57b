package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

func (r *runner) checkClipboard(ctx context.Context) (string, error) {
	if clipboard.Unsupported {
		return "", errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")
	}

	type result struct {
		got   string
		phase string
		err   error
	}
	probe := fmt.Sprintf("voicenotes-doctor-%d", time.Now().UnixNano())
	ch := make(chan result, 1)
	go func() {
		prev, _ := clipboard.ReadAll()
		defer clipboard.WriteAll(prev)
		if err := clipboard.WriteAll(probe); err != nil {
			ch <- result{phase: "write", err: err}
			return
		}
		got, err := clipboard.ReadAll()
		ch <- result{got: got, phase: "read", err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("clipboard %s: %w", res.phase, res.err)
		}
		if res.got != probe {
			return "", fmt.Errorf("wrote %q, read back %q", probe, res.got)
		}
		return "write and read verified, previous contents restored", nil
	case <-time.After(3 * time.Second):
		return "", errors.New("clipboard timed out (clipboard tool hung, is the display reachable?)")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
