package history

import (
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/kairyou/jenkins-cli/internal/jenkins"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/prompt"
)

// ParamDiff captures how a historical parameter set diverges from the job's
// current schema.
type ParamDiff struct {
	New           []string // in schema, not in history
	Missing       []string // in history, not in schema
	InvalidChoice []string // choice values no longer offered
}

// HasChanges reports whether any divergence was found.
func (d ParamDiff) HasChanges() bool {
	return len(d.New) > 0 || len(d.Missing) > 0 || len(d.InvalidChoice) > 0
}

// DiffParameters compares a historical value map against the current schema.
func DiffParameters(params map[string]jenkins.ParamValue, schema []jenkins.JobParameter) ParamDiff {
	current := make(map[string]bool, len(schema))
	choices := make(map[string][]string)
	for _, p := range schema {
		current[p.Name] = true
		if len(p.Choices) > 0 {
			choices[p.Name] = p.Choices
		}
	}

	var diff ParamDiff
	for _, p := range schema {
		if _, ok := params[p.Name]; !ok {
			diff.New = append(diff.New, p.Name)
		}
	}
	for name, value := range params {
		if !current[name] {
			diff.Missing = append(diff.Missing, name)
			continue
		}
		if value.Type != jenkins.ParamChoice {
			continue
		}
		opts, ok := choices[name]
		if !ok {
			continue
		}
		if !containsString(opts, value.Value) {
			diff.InvalidChoice = append(diff.InvalidChoice, name)
		}
	}
	return diff
}

// ShouldUseHistoryParams shows the previous build's parameters with a diff
// against the current schema and asks whether to reuse them. The confirm
// default is yes when nothing changed and no otherwise. A cancelled prompt
// propagates prompt.ErrCancelled so the caller can navigate back.
func ShouldUseHistoryParams(p *prompt.Prompter, out *output.Writer, entry *Entry, schema []jenkins.JobParameter) (bool, error) {
	if entry == nil || len(entry.Params) == 0 {
		return false, nil
	}

	header := "Last build parameters"
	if entry.CreatedAt > 0 {
		header += " (" + time.Unix(entry.CreatedAt, 0).Local().Format("2006-01-02 15:04:05") + ")"
	}
	out.Println(color.New(color.Bold).Sprint(header))

	diff := DiffParameters(entry.Params, schema)
	if diff.HasChanges() {
		out.Warning("Job parameters changed since the last build")
	}

	missing := toSet(diff.Missing)
	invalid := toSet(diff.InvalidChoice)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for _, name := range sortedKeys(entry.Params) {
		value := entry.Params[name].Value
		if entry.Params[name].Type == jenkins.ParamPassword {
			value = jenkins.MaskedPassword
		}
		switch {
		case missing[name]:
			out.Println(red.Sprintf("- %s: %s", name, value))
		case invalid[name]:
			out.Println(yellow.Sprintf("! %s: %s <invalid>", name, value))
		default:
			out.Println("  " + name + ": " + value)
		}
	}
	for _, name := range diff.New {
		out.Println(green.Sprintf("+ %s: <new>", name))
	}

	message := "Use last build parameters?"
	if diff.HasChanges() {
		message = "Parameters changed. Use last build parameters (adjusted)?"
	}

	return p.Confirm(message, !diff.HasChanges())
}

// MergeParameters reconciles a historical value map with the current schema:
// removed keys are dropped, schema parameters missing from history are added
// at their defaults, and stale choice values fall back to the default or the
// first available choice.
func MergeParameters(entry *Entry, schema []jenkins.JobParameter) map[string]jenkins.ParamValue {
	merged := make(map[string]jenkins.ParamValue, len(schema))
	current := make(map[string]bool, len(schema))
	for _, p := range schema {
		current[p.Name] = true
	}

	if entry != nil {
		for name, value := range entry.Params {
			if current[name] {
				merged[name] = value
			}
		}
	}

	for _, p := range schema {
		if _, ok := merged[p.Name]; !ok {
			merged[p.Name] = jenkins.ParamValue{Value: p.DefaultValue, Type: p.Type}
		}
	}

	for _, p := range schema {
		if len(p.Choices) == 0 {
			continue
		}
		value, ok := merged[p.Name]
		if !ok || value.Type != jenkins.ParamChoice {
			continue
		}
		if containsString(p.Choices, value.Value) {
			continue
		}
		fallback := p.DefaultValue
		if fallback == "" || !containsString(p.Choices, fallback) {
			fallback = p.Choices[0]
		}
		value.Value = fallback
		merged[p.Name] = value
	}

	return merged
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func sortedKeys(m map[string]jenkins.ParamValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
