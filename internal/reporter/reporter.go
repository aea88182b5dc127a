package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/internal/models"
	"github.com/shotwatch/shotwatch/pkg/utils"
)

// Periods accepted by GenerateReport.
var Periods = []string{"day", "week", "month"}

// ErrInvalidPeriod is returned for a period other than Periods.
var ErrInvalidPeriod = errors.New("invalid period type")

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	appStyle   = lipgloss.NewStyle().Width(32)
	cellStyle  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
)

// Summarizer aggregates stored events per application.
type Summarizer interface {
	GetAppSummarySince(since time.Time) ([]models.AppSummary, error)
}

// Reporter handles report generation
type Reporter struct {
	repo Summarizer
	now  func() time.Time
}

// New creates a new reporter
func New(repo Summarizer) *Reporter {
	return &Reporter{repo: repo, now: time.Now}
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := Period(periodType, r.now())
	if err != nil {
		return nil, err
	}

	summaries, err := r.repo.GetAppSummarySince(period.Start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get app summary")
	}

	var totalSeconds int64
	for i := range summaries {
		if summaries[i].AppName == "" {
			summaries[i].AppName = "unknown"
		}
		summaries[i].TotalMinutes = float64(summaries[i].TotalSeconds) / 60.0
		summaries[i].TotalHours = float64(summaries[i].TotalSeconds) / 3600.0
		totalSeconds += summaries[i].TotalSeconds
	}
	if totalSeconds > 0 {
		for i := range summaries {
			summaries[i].Percentage = float64(summaries[i].TotalSeconds) / float64(totalSeconds) * 100.0
		}
	}
	if summaries == nil {
		summaries = []models.AppSummary{}
	}

	return &models.Report{
		Period:       *period,
		Apps:         summaries,
		TotalSeconds: totalSeconds,
		TotalMinutes: float64(totalSeconds) / 60.0,
		TotalHours:   float64(totalSeconds) / 3600.0,
		GeneratedAt:  r.now(),
	}, nil
}

// Period calculates the time range of a day, week (from Monday) or month
// containing now.
func Period(periodType string, now time.Time) (*models.ReportPeriod, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var start, end time.Time

	switch periodType {
	case "day", "today", "":
		periodType = "day"
		start = midnight
		end = start.AddDate(0, 0, 1)
	case "week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = midnight.AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)
	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)
	default:
		return nil, errors.Wrapf(ErrInvalidPeriod, "period %q (valid: %s)", periodType, strings.Join(Periods, ", "))
	}

	return &models.ReportPeriod{Start: start, End: end, Type: periodType}, nil
}

// FormatReportText formats the report as a table for the terminal
func FormatReportText(report *models.Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Screenshot activity - "+report.Period.Type) + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%s to %s",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))) + "\n")
	b.WriteString(fmt.Sprintf("Total: %s\n\n", utils.FormatDuration(report.TotalSeconds)))

	if len(report.Apps) == 0 {
		b.WriteString("No activity recorded for this period.\n")
		return b.String()
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		appStyle.Render("Application"), cellStyle.Render("Time"), cellStyle.Render("Events"), cellStyle.Render("Percent")) + "\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", 62)) + "\n")

	for _, app := range report.Apps {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			appStyle.Render(utils.Truncate(app.AppName, 30)),
			cellStyle.Render(utils.FormatDuration(app.TotalSeconds)),
			cellStyle.Render(fmt.Sprintf("%d", app.EventCount)),
			cellStyle.Render(fmt.Sprintf("%.1f%%", app.Percentage))) + "\n")
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return string(data), nil
}
