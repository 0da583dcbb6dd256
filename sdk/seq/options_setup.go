package seq

import (
	"github.com/leandrodaf/alsaseq/internal/logger"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// applyDefaultOptions fills in defaults for every option not explicitly
// provided.
func applyDefaultOptions(opts ...contracts.Option) (contracts.ClientOptions, error) {
	options := &contracts.ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel
	}
	if options.ClientName == "" {
		options.ClientName = "Go Sequencer Client"
	}
	if options.SequencerName == "" {
		options.SequencerName = "default"
	}

	options.Logger.SetLevel(options.LogLevel)
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}
	return *options, nil
}
