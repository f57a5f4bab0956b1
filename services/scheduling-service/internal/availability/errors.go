package availability

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRuleDefinition = errors.New("invalid rule definition")
	ErrInvalidSlotConfig     = errors.New("invalid slot config")
)

// RuleError reports why a window rule was rejected.
type RuleError struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

func (e *RuleError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidRuleDefinition, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", ErrInvalidRuleDefinition, e.RuleID, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return ErrInvalidRuleDefinition
}
