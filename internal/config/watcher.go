package config

import (
	"os"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
)

// ConfigWatcher watches a config file for changes and triggers reload.
type ConfigWatcher struct {
	filePath     string
	pollInterval time.Duration
	debounce     time.Duration
	lastModTime  time.Time
	lastSize     int64
	lastConfig   *Config
	onChange     func(oldCfg, newCfg *Config)
	logger       logging.Logger
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	mu           sync.Mutex
	running      bool
}

// WatcherConfig holds config watcher configuration.
type WatcherConfig struct {
	FilePath     string
	PollInterval time.Duration // Default: 1s
	Debounce     time.Duration // Default: 500ms
	OnChange     func(oldCfg, newCfg *Config)
	Logger       logging.Logger
}

// NewConfigWatcher creates a new config file watcher. The file must hold a
// valid configuration.
func NewConfigWatcher(cfg *WatcherConfig) (*ConfigWatcher, error) {
	if cfg.FilePath == "" {
		return nil, ErrMissingConfigFile
	}
	if cfg.OnChange == nil {
		return nil, ErrMissingOnChange
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = time.Second
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	info, err := os.Stat(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	initialConfig, err := LoadConfig(cfg.FilePath)
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		filePath:     cfg.FilePath,
		pollInterval: pollInterval,
		debounce:     debounce,
		lastModTime:  info.ModTime(),
		lastSize:     info.Size(),
		lastConfig:   initialConfig,
		onChange:     cfg.OnChange,
		logger:       logger,
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}, nil
}

// Start begins watching the config file for changes.
func (w *ConfigWatcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.watchLoop()
}

// Stop stops watching the config file.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh
}

func (w *ConfigWatcher) watchLoop() {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			if !w.checkFileChanged() {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			w.triggerReload()
			debounceTimer = nil
			debounceCh = nil
		}
	}
}

func (w *ConfigWatcher) checkFileChanged() bool {
	info, err := os.Stat(w.filePath)
	if err != nil {
		return false
	}
	if info.ModTime() == w.lastModTime && info.Size() == w.lastSize {
		return false
	}
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	return true
}

// triggerReload loads the new config and calls onChange. Invalid
// configurations are logged and ignored.
func (w *ConfigWatcher) triggerReload() {
	newConfig, err := LoadConfig(w.filePath)
	if err != nil {
		w.logger.Warn("configuration not reloaded", "file", w.filePath, "error", err)
		return
	}
	if errs := ValidateConfig(newConfig); len(errs) > 0 {
		w.logger.Warn("configuration not reloaded", "file", w.filePath, "errors", len(errs), "first", errs[0])
		return
	}

	w.mu.Lock()
	oldConfig := w.lastConfig
	w.lastConfig = newConfig
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", "file", w.filePath)
	w.onChange(oldConfig, newConfig)
}

// IsRunning returns true if the watcher is running.
func (w *ConfigWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// GetCurrentConfig returns the last loaded config.
func (w *ConfigWatcher) GetCurrentConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfig
}
