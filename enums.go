package throttle

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RollKind identifies which transition rule the last RateThrottler.Add applied.
type RollKind int

const (
	RollNone RollKind = iota
	RollFirstUse
	RollRegression
	RollSameSlot
	RollFullWindow
	RollPartialSum
	RollPartialSubtract
)

var rollKindNames = [...]string{
	RollNone:            "none",
	RollFirstUse:        "first-use",
	RollRegression:      "regression",
	RollSameSlot:        "same-slot",
	RollFullWindow:      "full-window",
	RollPartialSum:      "partial-sum",
	RollPartialSubtract: "partial-subtract",
}

func (k RollKind) String() string {
	return enumName(rollKindNames[:], int(k), "RollKind")
}

// UnderflowPolicy decides what the subtract branch of a partial roll does
// when the running sum would go negative.
type UnderflowPolicy int

const (
	// UnderflowRederive recomputes the running sum from the slots
	// still inside the window.
	UnderflowRederive UnderflowPolicy = iota
	// UnderflowClamp clamps the running sum to zero at every subtraction
	// that would make it negative.
	UnderflowClamp
)

var underflowPolicyNames = [...]string{
	UnderflowRederive: "rederive",
	UnderflowClamp:    "clamp",
}

func (p UnderflowPolicy) String() string {
	return enumName(underflowPolicyNames[:], int(p), "UnderflowPolicy")
}

func (p UnderflowPolicy) valid() bool {
	return p >= 0 && int(p) < len(underflowPolicyNames)
}

func ParseUnderflowPolicy(s string) (UnderflowPolicy, error) {
	v, err := parseEnum(underflowPolicyNames[:], s, "underflow_policy")
	return UnderflowPolicy(v), err
}

func (p *UnderflowPolicy) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseUnderflowPolicy(node.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ThrottleKind selects the primitive a Group builds for each key.
type ThrottleKind int

const (
	KindSpacing ThrottleKind = iota
	KindBucketed
)

var throttleKindNames = [...]string{
	KindSpacing:  "spacing",
	KindBucketed: "bucketed",
}

func (k ThrottleKind) String() string {
	return enumName(throttleKindNames[:], int(k), "ThrottleKind")
}

func ParseThrottleKind(s string) (ThrottleKind, error) {
	v, err := parseEnum(throttleKindNames[:], s, "kind")
	return ThrottleKind(v), err
}

func (k *ThrottleKind) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseThrottleKind(node.Value)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func enumName(names []string, v int, typeName string) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("%s(%d)", typeName, v)
	}
	return names[v]
}

// parseEnum accepts names case-insensitively; blank selects the zero value.
func parseEnum(names []string, s string, parameter string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, &ConfigurationError{
		Parameter: parameter,
		Reason:    fmt.Sprintf("unknown value %q, expected one of %s", s, strings.Join(names, ", ")),
	}
}
