package pipeline

// Alert reasons attached to an outcome.
const (
	AlertLatency       = "latency_threshold_exceeded"
	AlertLowConfidence = "confidence_too_low"
)

// evaluateAlerts flags slow or unconfident decisions.
func evaluateAlerts(latencyMS, maxLatencyMS int64, conf, minConf float64) []string {
	var reasons []string
	if latencyMS > maxLatencyMS {
		reasons = append(reasons, AlertLatency)
	}
	if conf < minConf {
		reasons = append(reasons, AlertLowConfidence)
	}
	return reasons
}
