// Package report prints job results and keeps a history of finished runs.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dd0wney/cluso-triangles/pkg/partition"
	"github.com/dd0wney/cluso-triangles/pkg/ttp"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(20)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	totalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

func row(label string, value any) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render(label),
		valueStyle.Render(fmt.Sprint(value)))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))).
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// Render writes a styled summary of a finished run
func Render(w io.Writer, r *ttp.Report) error {
	res := r.Result
	total := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("Triangles"),
		totalStyle.Render(strconv.FormatUint(res.Total, 10)))

	var counts, job string
	if r.Algorithm == ttp.AlgorithmWedge {
		counts = boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			row("Wedges", r.Wedges),
			row("Closed wedges", fmt.Sprintf("%d  (3 per triangle)", r.ClosedWedges)),
			total,
		))
		job = boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			row("Job", r.JobID),
			row("Input", r.Input),
			row("Algorithm", r.Algorithm),
			row("Input records", r.InputRecords),
			row("Malformed", r.MalformedRecords),
			row("Canonical edges", r.CanonicalEdges),
		))
	} else {
		counts = boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			row("Type1 (raw)", res.RawType1),
			row("Type1", fmt.Sprintf("%d  (raw / %d)", res.Type1, res.PartitionCount-1)),
			row("TypeSpanning", res.TypeSpanning),
			total,
		))
		job = boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			row("Job", r.JobID),
			row("Input", r.Input),
			row("Partitions", fmt.Sprintf("%d (%s)", res.PartitionCount, r.Strategy)),
			row("Input records", r.InputRecords),
			row("Malformed", r.MalformedRecords),
			row("Canonical edges", r.CanonicalEdges),
			row("Replicated records", r.ReplicatedRecords),
			row("Groups", r.Groups),
		))
	}

	stages := newTable("Stage", "Records", "Wall clock")
	for _, st := range r.Stages {
		stages.Row(st.Name, strconv.FormatUint(st.Records, 10), st.Duration.Round(time.Millisecond).String())
	}
	stages.Row("total", "", r.Duration.Round(time.Millisecond).String())

	out := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Triangle count"),
		lipgloss.JoinHorizontal(lipgloss.Top, counts, " ", job),
		stages.String(),
	)
	_, err := fmt.Fprintln(w, out)
	return err
}

// RenderPlan writes the replication metrics of a planned partitioning
func RenderPlan(w io.Writer, m *partition.ReplicationMetrics) error {
	summary := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("Partitions", m.PartitionCount),
		row("Edges", m.Edges),
		row("Same-partition", m.SamePartitionEdge),
		row("Replicated records", m.ReplicatedRecords),
		row("Replication factor", fmt.Sprintf("%.2f (max %d)", m.ReplicationFactor, partition.MaxReplication(m.PartitionCount))),
		row("Groups", fmt.Sprintf("%d of %d non-empty", m.NonEmptyGroups, m.GroupCount)),
		row("Group edges", fmt.Sprintf("mean %.1f, stddev %.1f", m.MeanGroupEdges, m.StdDevGroupEdges)),
		row("Largest group", fmt.Sprintf("%s (%d edges)", m.MaxGroup, m.MaxGroupEdges)),
		row("Load balance", fmt.Sprintf("%.3f", m.LoadBalance)),
	))

	sizes := newTable("Partition", "Vertices")
	for p, n := range m.PartitionSizes {
		sizes.Row(strconv.Itoa(p), strconv.Itoa(n))
	}

	out := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Replication plan"),
		summary,
		sizes.String(),
	)
	_, err := fmt.Fprintln(w, out)
	return err
}

// RenderHistory writes a table of past runs, newest first
func RenderHistory(w io.Writer, runs []*Run) error {
	t := newTable("Job", "Started", "Input", "Algorithm", "p", "Triangles", "Type1", "TypeSpanning", "Duration")
	for _, r := range runs {
		partitions := "-"
		if r.Partitions > 0 {
			partitions = strconv.Itoa(r.Partitions)
		}
		t.Row(
			r.JobID,
			r.CreatedAt.Local().Format(time.DateTime),
			r.Input,
			r.Algorithm,
			partitions,
			strconv.FormatUint(r.Total, 10),
			strconv.FormatUint(r.Type1, 10),
			strconv.FormatUint(r.TypeSpanning, 10),
			r.Duration.Round(time.Millisecond).String(),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// WriteRecords writes the plain tab separated output records
func WriteRecords(w io.Writer, res ttp.Result, byType bool) error {
	for _, rec := range res.Records(byType) {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", rec.Tag, rec.Count); err != nil {
			return err
		}
	}
	return nil
}
