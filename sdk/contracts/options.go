package contracts

// OpenDirection selects which event streams the connection opens.
type OpenDirection int

const (
	OpenDuplex OpenDirection = iota
	OpenInput
	OpenOutput
)

// ClientOptions defines the configuration of a sequencer client.
type ClientOptions struct {
	Logger      Logger
	LogLevel    LogLevel
	LogFilePath string

	// ClientName is the name registered in the kernel directory.
	ClientName string
	// SequencerName selects the sequencer node, normally "default".
	SequencerName string

	Direction   OpenDirection
	Nonblocking bool

	// Buffer sizes in events for the kernel-side pools.
	InputBufferEvents  int
	OutputBufferEvents int

	// Device, when set, bypasses the platform backend entirely.
	Device Device
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the sequencer client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the sequencer client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFilePath routes log output to the given file instead of the
// console.
func WithLogFilePath(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithClientName sets the name registered in the kernel directory.
func WithClientName(name string) Option {
	return func(opts *ClientOptions) {
		opts.ClientName = name
	}
}

// WithSequencerName selects a sequencer node other than "default".
func WithSequencerName(name string) Option {
	return func(opts *ClientOptions) {
		opts.SequencerName = name
	}
}

// WithDirection restricts the connection to input, output or duplex.
func WithDirection(dir OpenDirection) Option {
	return func(opts *ClientOptions) {
		opts.Direction = dir
	}
}

// WithNonblocking makes Read and Write return ErrWouldBlock instead of
// suspending.
func WithNonblocking() Option {
	return func(opts *ClientOptions) {
		opts.Nonblocking = true
	}
}

// WithInputBufferEvents sizes the kernel-side input pool.
func WithInputBufferEvents(n int) Option {
	return func(opts *ClientOptions) {
		opts.InputBufferEvents = n
	}
}

// WithOutputBufferEvents sizes the kernel-side output pool.
func WithOutputBufferEvents(n int) Option {
	return func(opts *ClientOptions) {
		opts.OutputBufferEvents = n
	}
}

// WithDevice injects a sequencer device, bypassing the platform backend.
func WithDevice(dev Device) Option {
	return func(opts *ClientOptions) {
		opts.Device = dev
	}
}
