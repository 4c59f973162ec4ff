package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/abdul-hamid-achik/tkrun/packages/discovery"
)

// watch re-runs target whenever a test document under it is written,
// until ctx is cancelled. Rapid successive writes trigger one run.
func watch(ctx context.Context, sess *session, target string, single bool, stdout, stderr io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("failed to create file watcher: %w", err))
	}
	defer watcher.Close()

	dirs := []string{filepath.Dir(target)}
	if !single {
		if dirs, err = discovery.Dirs(target); err != nil {
			return withExitCode(ExitConfigError, err)
		}
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			fmt.Fprintf(stderr, "failed to watch %s: %v\n", dir, err)
		}
	}

	fmt.Fprintf(stdout, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var (
		debounce <-chan time.Time
		changed  string
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !relevant(event.Name, target, single) {
				continue
			}
			changed = event.Name
			debounce = time.After(WatchDebounceDelay)

		case <-debounce:
			debounce = nil
			fmt.Fprintf(stdout, "\n\nFile changed: %s\nRe-running tests...\n\n", changed)
			if err := sess.run(ctx, target, single); err != nil {
				fmt.Fprintf(stderr, "%v\n", err)
			}
			fmt.Fprintf(stdout, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(stderr, "watcher error: %v\n", err)
		}
	}
}

// relevant filters watcher events down to the documents being run.
func relevant(name, target string, single bool) bool {
	if single {
		return filepath.Clean(name) == filepath.Clean(target)
	}
	return discovery.IsTestFile(name)
}
