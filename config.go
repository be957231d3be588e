package scriptbox

// Config configures one Sandbox instance. All limits are soft defaults: 0
// means unbounded for that resource.
type Config struct {
	// MemoryLimit bounds advisory memory accounting in bytes. gopher-lua
	// has no allocator interposer, so this is tracked from Go runtime
	// allocation deltas around Invoke rather than enforced mid-call.
	MemoryLimit uint64 `yaml:"memoryLimit"`

	// InstructionLimit bounds the number of VM dispatch ticks a single
	// Invoke call may take. 0 means unbounded.
	InstructionLimit uint64 `yaml:"instructionLimit"`

	// OutputLimit bounds the number of bytes output() may accumulate
	// across a sandbox's lifetime.
	OutputLimit int `yaml:"outputLimit"`

	// ModuleRoot is the directory external (non-builtin) modules are
	// loaded from via require(). Empty disables external modules.
	ModuleRoot string `yaml:"moduleRoot"`

	// PreservationPath, if set, is where sandbox global state is written
	// on Terminate and read back on the next Init.
	PreservationPath string `yaml:"preservationPath"`
}

// defaultConfig mirrors the zero Config: every limit unbounded, no module
// root, no preservation. Callers in practice always set at least the
// limits; this exists for tests and documentation.
func defaultConfig() Config {
	return Config{}
}
