package core

// BootOptions configures the managed runtime. Only the options of the first
// successful boot take effect for the life of the process.
type BootOptions struct {
	// Classpath lists directories and .zip archives searched for class
	// files, in order.
	Classpath []string `yaml:"classpath" mapstructure:"classpath"`

	// MemoryLimitMB caps the engine heap. Zero means the engine default.
	MemoryLimitMB int `yaml:"memory_limit_mb" mapstructure:"memory_limit_mb"`
}
