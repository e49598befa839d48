package alert

import (
	"fmt"
	"strings"

	"github.com/convoy-ops/convoy/internal/types"
)

// formatTitle renders the one-line alert headline.
func formatTitle(a *types.Alert) string {
	var what string
	switch a.Variant {
	case types.AlertServerUnreachable:
		if a.Resolved {
			what = fmt.Sprintf("%s is reachable again", a.Data.Name)
		} else {
			what = fmt.Sprintf("%s is unreachable", a.Data.Name)
		}
	case types.AlertServerCPU:
		what = fmt.Sprintf("%s cpu at %.1f%%", a.Data.Name, a.Data.Percent)
	case types.AlertServerMem:
		what = fmt.Sprintf("%s memory at %.1f%%", a.Data.Name, a.Data.Percent)
	case types.AlertServerDisk:
		what = fmt.Sprintf("%s disk %s at %.1f%%", a.Data.Name, a.Data.Path, a.Data.Percent)
	case types.AlertServerTemp:
		what = fmt.Sprintf("%s component %s at %.1f%% of critical temp", a.Data.Name, a.Data.Path, a.Data.Percent)
	case types.AlertContainerStateChange:
		what = fmt.Sprintf("%s went from %s to %s", a.Data.Name, a.Data.From, a.Data.To)
	case types.AlertAwsBuilderTerminationFailed:
		what = fmt.Sprintf("failed to terminate builder instance %s", a.Data.InstanceID)
	case types.AlertTest:
		what = fmt.Sprintf("test alert from %s", a.Data.Name)
	default:
		what = string(a.Variant)
	}
	return fmt.Sprintf("[%s] %s", severityLabel(a), what)
}

// formatBody renders the detail lines under the title.
func formatBody(a *types.Alert) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("target: %s %s", a.Target.Type, a.Data.Name))
	if a.Data.Region != "" {
		lines = append(lines, "region: "+a.Data.Region)
	}
	if a.Data.Err != "" {
		lines = append(lines, "error: "+a.Data.Err)
	}
	if a.Resolved {
		lines = append(lines, "resolved: "+a.ResolvedTS.Format("2006-01-02 15:04:05 MST"))
	}
	return strings.Join(lines, "\n")
}

func severityLabel(a *types.Alert) string {
	if a.Resolved {
		return "RESOLVED"
	}
	return strings.ToUpper(string(a.Severity))
}
