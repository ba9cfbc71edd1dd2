package share

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const unlimitedLabel = "unlimited"

// MaxViews is the view budget of a share: either Unlimited or Exactly(n)
// with n >= 1. The zero value is Unlimited.
//
// In JSON and YAML it is written as a positive integer or "unlimited".
type MaxViews struct {
	n int
}

// Unlimited returns a budget with no view limit.
func Unlimited() MaxViews {
	return MaxViews{}
}

// Exactly returns a budget of n views. It panics if n < 1; use ParseMaxViews
// for untrusted input.
func Exactly(n int) MaxViews {
	if n < 1 {
		panic(fmt.Sprintf("share: Exactly(%d): view budget must be positive", n))
	}
	return MaxViews{n: n}
}

// ParseMaxViews parses "unlimited" or a positive integer.
func ParseMaxViews(s string) (MaxViews, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == unlimitedLabel {
		return Unlimited(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return MaxViews{}, fmt.Errorf("invalid max views %q", s)
	}
	if n < 1 {
		return MaxViews{}, fmt.Errorf("max views must be positive or %q, got %d", unlimitedLabel, n)
	}
	return MaxViews{n: n}, nil
}

// MaxViewsFromColumn converts the stored column value, where 0 means unlimited.
func MaxViewsFromColumn(v int) MaxViews {
	if v <= 0 {
		return Unlimited()
	}
	return MaxViews{n: v}
}

// Column returns the value stored in the database.
func (m MaxViews) Column() int {
	return m.n
}

// Limit returns the budget and true, or 0 and false when unlimited.
func (m MaxViews) Limit() (int, bool) {
	return m.n, m.n > 0
}

func (m MaxViews) IsUnlimited() bool {
	return m.n == 0
}

// Exhausted reports whether count views use up the budget.
func (m MaxViews) Exhausted(count int) bool {
	return m.n > 0 && count >= m.n
}

func (m MaxViews) String() string {
	if m.n == 0 {
		return unlimitedLabel
	}
	return strconv.Itoa(m.n)
}

func (m MaxViews) MarshalJSON() ([]byte, error) {
	if m.n == 0 {
		return json.Marshal(unlimitedLabel)
	}
	return json.Marshal(m.n)
}

func (m *MaxViews) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := ParseMaxViews(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("max views must be a number or %q", unlimitedLabel)
	}
	v, err := ParseMaxViews(strconv.Itoa(n))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m *MaxViews) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseMaxViews(node.Value)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m MaxViews) MarshalYAML() (any, error) {
	if m.n == 0 {
		return unlimitedLabel, nil
	}
	return m.n, nil
}
