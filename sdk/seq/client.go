// Package seq is the public entry point of the sequencer client library.
package seq

import (
	"fmt"
	"runtime"

	"github.com/leandrodaf/alsaseq/internal/kernel/devfs"
	"github.com/leandrodaf/alsaseq/internal/sequencer"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// deviceInitializers maps OS names to sequencer device backends.
var deviceInitializers = map[string]func(*contracts.ClientOptions) (contracts.Device, error){
	"linux": devfs.Open,
}

// NewSequencerClient opens a connection to the kernel sequencer and returns
// the client handle. Options customize naming, blocking behavior and
// buffering; WithDevice swaps the platform backend for an injected one.
func NewSequencerClient(opts ...contracts.Option) (contracts.SequencerClient, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	dev := options.Device
	if dev == nil {
		initializer, exists := deviceInitializers[runtime.GOOS]
		if !exists {
			return nil, fmt.Errorf("%w: %s", contracts.ErrUnsupportedOS, runtime.GOOS)
		}
		dev, err = initializer(&options)
		if err != nil {
			return nil, err
		}
	}

	return sequencer.New(dev, &options)
}
