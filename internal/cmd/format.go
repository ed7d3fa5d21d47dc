package cmd

import "fmt"

// formatCost renders a USD amount with 6 decimals, or "< 0.0001" for
// non-zero amounts below that.
func formatCost(c float64) string {
	if c > 0 && c < 0.0001 {
		return "< 0.0001"
	}
	return fmt.Sprintf("%.6f", c)
}
