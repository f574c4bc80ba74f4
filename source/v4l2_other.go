//go:build !linux

package source

import "errors"

var errUnsupported = errors.New("V4L2 capture is only available on linux")

func openV4L2(string) (captureDevice, error) {
	return nil, errUnsupported
}
