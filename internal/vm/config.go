package vm

// Config is the runtime configuration surface §6 enumerates.
type Config struct {
	DebugMode    bool // prints module statistics on load
	StackTrace   bool // prints every stack operation
	GCThreshold  int  // object-count ceiling, default 10000
	GCEnabled    bool // default true
}

func DefaultConfig() Config {
	return Config{
		GCThreshold: 10000,
		GCEnabled:   true,
	}
}
