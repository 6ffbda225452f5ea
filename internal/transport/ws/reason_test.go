package ws

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))

	ascii := strings.Repeat("a", 200)
	assert.Len(t, truncateReason(ascii), maxReason)

	// 119 ASCII bytes then a 3-byte rune straddling the limit.
	mixed := strings.Repeat("a", 119) + "€€€"
	got := truncateReason(mixed)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 119), got)

	wide := strings.Repeat("世", 60)
	got = truncateReason(wide)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxReason)
	assert.Equal(t, 40, utf8.RuneCountInString(got))
}
