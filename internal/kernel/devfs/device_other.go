//go:build !linux

package devfs

import (
	"fmt"
	"runtime"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// Open fails on platforms without the kernel sequencer device. Callers on
// other systems inject a device through WithDevice instead.
func Open(opts *contracts.ClientOptions) (contracts.Device, error) {
	return nil, fmt.Errorf("%w: %s has no /dev/snd/seq", contracts.ErrUnsupportedOS, runtime.GOOS)
}
