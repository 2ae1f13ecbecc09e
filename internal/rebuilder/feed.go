package rebuilder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// Feed hands out rebuild tasks. Next returns io.EOF when the feed is
// drained. An error wrapping ErrInvalidTask skips one entry; any other
// error stops the run.
type Feed interface {
	Next(ctx context.Context) (domain.RebuildTask, error)
}

// SliceFeed serves a fixed list of tasks.
type SliceFeed struct {
	mu    sync.Mutex
	tasks []domain.RebuildTask
}

func NewSliceFeed(tasks ...domain.RebuildTask) *SliceFeed {
	return &SliceFeed{tasks: tasks}
}

func (f *SliceFeed) Next(ctx context.Context) (domain.RebuildTask, error) {
	if err := ctx.Err(); err != nil {
		return domain.RebuildTask{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		return domain.RebuildTask{}, io.EOF
	}
	task := f.tasks[0]
	f.tasks = f.tasks[1:]
	return task, nil
}

// JSONLinesFeed reads one JSON task per line. Blank lines and lines
// starting with '#' are skipped.
//
//	{"namespace":"ZBLOB","container_id":"...","content_id":"...","chunk_id":"..."}
type JSONLinesFeed struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	line    int
}

func NewJSONLinesFeed(r io.Reader) *JSONLinesFeed {
	return &JSONLinesFeed{scanner: bufio.NewScanner(r)}
}

func (f *JSONLinesFeed) Next(ctx context.Context) (domain.RebuildTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return domain.RebuildTask{}, err
		}
		if !f.scanner.Scan() {
			if err := f.scanner.Err(); err != nil {
				return domain.RebuildTask{}, fmt.Errorf("failed to read tasks: %w", err)
			}
			return domain.RebuildTask{}, io.EOF
		}
		f.line++

		line := strings.TrimSpace(f.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var task domain.RebuildTask
		if err := json.Unmarshal([]byte(line), &task); err != nil {
			return domain.RebuildTask{}, fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidTask, f.line, err)
		}
		return task, nil
	}
}
