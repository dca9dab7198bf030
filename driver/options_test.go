package driver

import (
	"errors"
	"testing"

	"github.com/ardnew/sdspi/pkg"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Options
		wantErr bool
	}{
		{"empty", "", Options{}, false},
		{"name only", "SDPP.SYS", Options{}, false},
		{"debug", "SDPP.SYS /D", Options{Debug: true}, false},
		{"lower case", "sdpp.sys /d /p=3", Options{Debug: true, Partition: 3}, false},
		{"partition", "SDPP.SYS /P=1", Options{Partition: 1}, false},
		{"tabs", "SDPP.SYS\t/P=4\t/D\r\n", Options{Debug: true, Partition: 4}, false},
		{"partition out of range ignored", "SDPP.SYS /P=5", Options{}, false},
		{"partition zero ignored", "SDPP.SYS /P=0 /D", Options{Debug: true}, false},
		{"missing value", "SDPP.SYS /P", Options{}, true},
		{"missing digits", "SDPP.SYS /P=", Options{}, true},
		{"not numeric", "SDPP.SYS /P=x", Options{}, true},
		{"unknown option", "SDPP.SYS /Q", Options{}, true},
		{"missing slash", "SDPP.SYS D", Options{}, true},
		{"debug with suffix", "SDPP.SYS /DX", Options{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOptions(tt.line)
			if tt.wantErr {
				if !errors.Is(err, pkg.ErrInvalidParameter) {
					t.Errorf("ParseOptions(%q) error = %v, want ErrInvalidParameter", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOptions(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseOptions(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}
