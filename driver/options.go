package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ardnew/sdspi/pkg"
	"github.com/ardnew/sdspi/volume"
)

// Options are the settings given on the driver's device line.
type Options struct {
	Debug     bool  // /D: log every request and card command
	Partition uint8 // /P=n: force partition n (1-4); 0 selects automatically
}

// ParseOptions parses a device line of the form "SDPP.SYS /D /P=2".
//
// The first word names the driver file and is skipped. Option letters are
// case-insensitive. A partition number outside 1 to 4 is reported and
// ignored; any other malformed option fails the whole line.
func ParseOptions(line string) (Options, error) {
	var opts Options

	fields := strings.Fields(line)
	if len(fields) > 0 {
		fields = fields[1:]
	}

	for _, f := range fields {
		if len(f) < 2 || f[0] != '/' {
			return Options{}, fmt.Errorf("%w: option %q", pkg.ErrInvalidParameter, f)
		}
		switch f[1] {
		case 'd', 'D':
			if len(f) != 2 {
				return Options{}, fmt.Errorf("%w: option %q", pkg.ErrInvalidParameter, f)
			}
			opts.Debug = true

		case 'p', 'P':
			v, ok := optionValue(f[2:])
			if !ok {
				return Options{}, fmt.Errorf("%w: option %q", pkg.ErrInvalidParameter, f)
			}
			if v < 1 || v > volume.MaxPartition {
				pkg.LogWarn(pkg.ComponentDriver, "invalid partition number", "partition", v)
				continue
			}
			opts.Partition = uint8(v)

		default:
			return Options{}, fmt.Errorf("%w: option %q", pkg.ErrInvalidParameter, f)
		}
	}
	return opts, nil
}

// optionValue parses the "=nnn" part of an option.
func optionValue(s string) (uint64, bool) {
	if len(s) < 2 || s[0] != '=' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[1:], 10, 16)
	if err != nil {
		return 0, false
	}
	return v, true
}
