package safety

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel is an ordered safety classification. Ordering is significant:
// confirmation policies express thresholds against it.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskSafe:     "safe",
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return "unknown"
}

// Escalate returns the next level up, capped at critical.
func (r RiskLevel) Escalate() RiskLevel {
	if r >= RiskCritical {
		return RiskCritical
	}
	return r + 1
}

// ParseRiskLevel converts a string back to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for level, name := range riskNames {
		if strings.EqualFold(s, name) {
			return level, nil
		}
	}
	return RiskMedium, fmt.Errorf("unknown risk level: %q", s)
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}
