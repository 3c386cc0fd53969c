// Package report renders model snapshots as the plain-text trajectory export
// and as the prompt handed to the advisory text generator.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gmsas95/medtwin/internal/model"
)

// Filename is the suggested name for the downloaded export
const Filename = "health_trajectory.txt"

const promptRequest = "Please provide a summary and any AI-driven recommendations for this patient."

// Text renders the trajectory export
func Text(snap model.Snapshot) string {
	var sb strings.Builder

	sb.WriteString("Health Trajectory Model\n")
	sb.WriteString("Overall Health Score: " + strconv.Itoa(snap.OverallHealth) + "\n")
	sb.WriteString("Status: " + model.HealthStatus(snap.OverallHealth) + "\n\n")
	sb.WriteString("Metric Trajectories:\n")
	writeBody(&sb, snap)

	return sb.String()
}

// Prompt renders the request sent to the text generator
func Prompt(snap model.Snapshot) string {
	var sb strings.Builder

	sb.WriteString("Patient Health Summary:\n")
	sb.WriteString("Overall Health Score: " + strconv.Itoa(snap.OverallHealth) + "\n")
	sb.WriteString("Metrics:\n")
	writeBody(&sb, snap)
	sb.WriteString("\n" + promptRequest)

	return sb.String()
}

func writeBody(sb *strings.Builder, snap model.Snapshot) {
	for _, key := range sortedKeys(snap.Metrics) {
		m := snap.Metrics[key]
		sb.WriteString("- " + m.Name +
			": Current=" + Number(m.Current) +
			", Target=" + Number(m.Target) +
			", Baseline=" + Number(m.Baseline) +
			", Impact=" + Number(m.ImpactScore) +
			", Trend=" + string(m.Trend) + "\n")
	}

	if len(snap.Applied) == 0 {
		return
	}

	sb.WriteString("\nActive Treatments:\n")
	for _, t := range snap.Applied {
		sb.WriteString("- " + t.Name + " (" + t.Type + "):\n")
		for _, key := range sortedKeys(t.ExpectedImpact) {
			sb.WriteString("    " + key + ": " + SignedNumber(t.ExpectedImpact[key]) + "\n")
		}
	}
}

// Number formats v in its shortest form: 145, 146.9, -25
func Number(v float64) string {
	if v == 0 {
		// avoid "-0"
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SignedNumber is Number with a leading '+' for positive values
func SignedNumber(v float64) string {
	if v > 0 {
		return "+" + Number(v)
	}
	return Number(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
