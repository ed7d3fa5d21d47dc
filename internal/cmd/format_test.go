package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "0.000000", formatCost(0))
	assert.Equal(t, "< 0.0001", formatCost(0.00005))
	assert.Equal(t, "0.000100", formatCost(0.0001))
	assert.Equal(t, "1.234567", formatCost(1.234567))
}

func TestRenderCostsByTier(t *testing.T) {
	var buf bytes.Buffer
	renderCostsByTier(&buf, "acme", map[string]float64{"tier_2": 0.5, "tier_1": 0.375}, 1.0)
	out := buf.String()
	assert.Contains(t, out, "Tenant: acme")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("tier_1")), bytes.Index(buf.Bytes(), []byte("tier_2")))
	assert.Contains(t, out, "0.875000")
	assert.Contains(t, out, "87.5%")
	assert.Contains(t, out, "warning")
}
