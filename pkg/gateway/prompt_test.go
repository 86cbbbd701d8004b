package gateway

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateToBudgetUnderLimitUnchanged(t *testing.T) {
	assert.Equal(t, "short", truncateToBudget("short", 100))
}

func TestTruncateToBudgetCutsOnRuneBoundary(t *testing.T) {
	// 2 tokens cap the payload at 8 bytes. The é straddles that cut and
	// must be dropped whole, never split into a dangling continuation byte.
	s := strings.Repeat("a", 7) + "é" + strings.Repeat("b", 5)
	got := truncateToBudget(s, 2)
	assert.Equal(t, strings.Repeat("a", 7), got)
	assert.True(t, utf8.ValidString(got))
}

func TestTruncateToBudgetMultiByteHeavyPayloadStaysValid(t *testing.T) {
	s := strings.Repeat("日本語", 100)
	got := truncateToBudget(s, 4)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 16)
	assert.True(t, strings.HasPrefix(s, got))
}
