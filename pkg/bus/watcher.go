package bus

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the event bursts editors produce on save.
const reloadDebounce = 300 * time.Millisecond

// watchConfig reloads the system configuration when its file changes. The
// watch is on the directory, not the file: editors that save via rename
// replace the inode and a file watch would go dead after the first save.
func (s *Service) watchConfig() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.cfg.ConfigFile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	base := filepath.Base(s.cfg.ConfigFile)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer watcher.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-s.stop:
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					s.log.Info().Str("file", s.cfg.ConfigFile).
						Msg("Configuration file changed, reloading")
					s.loadConfig()
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("Configuration watcher error")
			}
		}
	}()

	return nil
}
