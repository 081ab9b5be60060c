package config

import (
	"fmt"
	"strings"
)

// ValidationError names the offending configuration key.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func invalid(key, format string, args ...any) error {
	return &ValidationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Validate ensures the conversion rules are coherent. It runs before any output is written.
func (c *Global) Validate() error {
	if err := c.validateColumns(); err != nil {
		return err
	}
	if err := c.validatePairing(); err != nil {
		return err
	}
	if err := c.validateInstruments(); err != nil {
		return err
	}
	if err := c.validateOAE(); err != nil {
		return err
	}
	if err := c.validateReference(); err != nil {
		return err
	}
	return nil
}

func (c *Global) validateColumns() error {
	if strings.TrimSpace(c.NA) == "" {
		return invalid("na_value", "must be set")
	}
	if c.Columns.Subject == "" {
		return invalid("columns.subject", "must be set")
	}
	if c.Columns.Date == "" {
		return invalid("columns.date", "must be set")
	}
	if c.Columns.Protocol == "" {
		return invalid("columns.protocol", "must be set")
	}
	if c.Columns.Condition == "" {
		return invalid("columns.condition", "must be set")
	}
	if strings.TrimSpace(c.FirstBaseline) == "" {
		return invalid("first_baseline", "must be set")
	}
	return nil
}

func (c *Global) validatePairing() error {
	seen := map[string]struct{}{}
	for i, p := range c.Pairable {
		key := fmt.Sprintf("pairable_conditions[%d]", i)
		if strings.TrimSpace(p.Condition) == "" {
			return invalid(key+".condition", "must be set")
		}
		if strings.TrimSpace(p.Paired) == "" {
			return invalid(key+".paired", "condition %q has no paired label", p.Condition)
		}
		if _, dup := seen[p.Condition]; dup {
			return invalid(key+".condition", "duplicate condition %q", p.Condition)
		}
		seen[p.Condition] = struct{}{}
	}
	if len(c.Pairable) > 0 && c.Columns.Boundary == "" {
		return invalid("columns.boundary", "must be set when pairable conditions exist")
	}
	return nil
}

func (c *Global) validateInstruments() error {
	names := map[string]struct{}{}
	for i, in := range c.Instruments {
		key := fmt.Sprintf("instruments[%d]", i)
		if in.Name == "" {
			return invalid(key+".name", "must be set")
		}
		if _, dup := names[in.Name]; dup {
			return invalid(key+".name", "duplicate instrument %q", in.Name)
		}
		names[in.Name] = struct{}{}
		if len(in.Fields) == 0 {
			return invalid(key+".fields", "instrument %q has no fields", in.Name)
		}
		if n := len(in.SideCodes); n != 0 && n != 2 {
			return invalid(key+".side_codes", "expected 0 or 2 codes, got %d", n)
		}
	}
	for i, r := range c.Rules {
		key := fmt.Sprintf("column_rules[%d]", i)
		if r.Match != "prefix" && r.Match != "suffix" {
			return invalid(key+".match", "unsupported value %q", r.Match)
		}
		if r.Pattern == "" {
			return invalid(key+".pattern", "must be set")
		}
		if _, ok := names[r.Instrument]; !ok {
			return invalid(key+".instrument", "unknown instrument %q", r.Instrument)
		}
		if r.Side != 0 && r.Side != 1 {
			return invalid(key+".side", "must be 0 or 1")
		}
	}
	return nil
}

func (c *Global) validateOAE() error {
	for i, f := range c.OAE.EarPairs {
		key := fmt.Sprintf("oae.ear_pairs[%d]", i)
		if f.Name == "" || f.RightSuffix == "" || f.LeftSuffix == "" {
			return invalid(key, "name, right_suffix and left_suffix must be set")
		}
		if err := validateFields(key+".fields", f.Fields); err != nil {
			return err
		}
	}
	g := c.OAE.Growth
	if g.Name == "" {
		return nil
	}
	if len(g.Frequencies) == 0 {
		return invalid("oae.growth.frequencies", "must not be empty")
	}
	if g.RightSuffix == "" || g.LeftSuffix == "" {
		return invalid("oae.growth", "right_suffix and left_suffix must be set")
	}
	if len(g.SingleConditions) > 0 && g.SingleFrequency == "" {
		return invalid("oae.growth.single_frequency", "must be set when single_conditions exist")
	}
	for i, p := range g.PrePost {
		if p.Condition == "" || p.Marker == "" {
			return invalid(fmt.Sprintf("oae.growth.pre_post[%d]", i), "condition and marker must be set")
		}
	}
	return validateFields("oae.growth.fields", g.Fields)
}

func validateFields(key string, fields []OAEField) error {
	if len(fields) == 0 {
		return invalid(key, "must not be empty")
	}
	for i, f := range fields {
		k := fmt.Sprintf("%s[%d]", key, i)
		if f.Name == "" {
			return invalid(k+".name", "must be set")
		}
		switch f.Derive {
		case "":
			if f.Source == "" {
				return invalid(k, "field %q needs a source or derive", f.Name)
			}
		case "ratio":
			if len(f.Operands) != 1 || f.Divisor == 0 {
				return invalid(k, "ratio needs one operand and a non-zero divisor")
			}
		case "difference":
			if len(f.Operands) != 2 {
				return invalid(k, "difference needs two operands")
			}
		default:
			return invalid(k+".derive", "unsupported value %q", f.Derive)
		}
	}
	return nil
}

func (c *Global) validateReference() error {
	known := map[string]struct{}{}
	for _, in := range c.Instruments {
		known[in.Name] = struct{}{}
	}
	for _, f := range c.OAE.EarPairs {
		known[f.Name] = struct{}{}
	}
	if c.OAE.Growth.Name != "" {
		known[c.OAE.Growth.Name] = struct{}{}
	}
	if c.Reference.PresentMarker == c.Reference.AbsentMarker {
		return invalid("reference", "present_marker and absent_marker must differ")
	}
	for i, col := range c.Reference.Columns {
		key := fmt.Sprintf("reference.columns[%d]", i)
		if col.Name == "" {
			return invalid(key+".name", "must be set")
		}
		if _, ok := known[col.Instrument]; !ok {
			return invalid(key+".instrument", "unknown instrument %q", col.Instrument)
		}
	}
	return nil
}
