//go:build !unix

package accessory

import (
	"errors"
	"os"
)

func suspend(_ *os.Process) error { return errors.ErrUnsupported }

func resume(_ *os.Process) error { return nil }
