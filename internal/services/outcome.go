package services

import (
	"fmt"
	"strings"
)

// StepOutcome is the result of one best-effort side effect
type StepOutcome struct {
	Step    string
	OK      bool
	Skipped bool
	Detail  string
	Err     error
}

func succeeded(step, detail string) StepOutcome {
	return StepOutcome{Step: step, OK: true, Detail: detail}
}

func skipped(step, detail string) StepOutcome {
	return StepOutcome{Step: step, Skipped: true, Detail: detail}
}

func failed(step string, err error) StepOutcome {
	return StepOutcome{Step: step, Err: err, Detail: err.Error()}
}

// Outcomes collects step results in execution order
type Outcomes []StepOutcome

func (o *Outcomes) Add(out StepOutcome) StepOutcome {
	*o = append(*o, out)
	return out
}

// Get returns the outcome recorded for step, if any
func (o Outcomes) Get(step string) (StepOutcome, bool) {
	for _, out := range o {
		if out.Step == step {
			return out, true
		}
	}
	return StepOutcome{}, false
}

// Failed returns the steps that ran and failed
func (o Outcomes) Failed() Outcomes {
	var out Outcomes
	for _, s := range o {
		if !s.OK && !s.Skipped {
			out = append(out, s)
		}
	}
	return out
}

// Summary renders one line per step, for logs
func (o Outcomes) Summary() string {
	lines := make([]string, 0, len(o))
	for _, s := range o {
		state := "ok"
		switch {
		case s.Skipped:
			state = "skipped"
		case !s.OK:
			state = "failed"
		}
		line := fmt.Sprintf("%s=%s", s.Step, state)
		if s.Detail != "" && state != "ok" {
			line += " (" + s.Detail + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "; ")
}
