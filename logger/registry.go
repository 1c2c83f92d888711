package logger

import (
	"sync"
)

// registry maps component names (scheduler, engine, metadata, ...) to the
// logger each package looks up with Get.
var registry = &loggerRegistry{
	loggers: make(map[string]*Logger),
}

type loggerRegistry struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}

// Register overrides the logger returned by Get(name).
func Register(name string, l *Logger) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.loggers[name] = l
}

// Get returns the logger for a component. Unregistered components get the
// global logger tagged with the component name, so packages can call Get
// before the CLI has loaded its config.
func Get(name string) *Logger {
	registry.mu.RLock()
	l, ok := registry.loggers[name]
	registry.mu.RUnlock()
	if ok {
		return l
	}
	return GetGlobalLogger().WithComponent(name)
}

// RegisterDefaults pins each component to the current global logger. The CLI
// calls it once after Init so every command logs at the configured level.
func RegisterDefaults(names ...string) {
	global := GetGlobalLogger()
	for _, name := range names {
		Register(name, global.WithComponent(name))
	}
}
