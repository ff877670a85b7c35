package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	period := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cfg  Config
		num  int64
		want string
	}{
		{"default", DefaultConfig("GR"), 1, "GR-2025-00001"},
		{"no year", Config{Prefix: "GI", PadWidth: 3}, 42, "GI-042"},
		{"zero pad width falls back to 5", Config{Prefix: "AD"}, 7, "AD-00007"},
		{"wider than pad", Config{Prefix: "GR", PadWidth: 2}, 1234, "GR-1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.cfg, period, tt.num))
		})
	}
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(15), ParseNumber("GR-2025-00015"))
	assert.Equal(t, int64(42), ParseNumber("GI-042"))
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
}
