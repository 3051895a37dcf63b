// Package observability provides boxed, human-readable output for the CLI's --pretty mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/shift-backfill/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer writes boxed summaries of backfill state.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// PrintVacancy outputs the shift and client context of a vacancy.
// Only the client's first name and last initial are ever shown.
func (p *Printer) PrintVacancy(v *types.Vacancy) {
	if v == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Shift:    %s\n", v.ShiftID))
	sb.WriteString(fmt.Sprintf("Client:   %s %s.\n", v.ClientFirstName, v.ClientLastInitial))
	sb.WriteString(fmt.Sprintf("Language: %s\n", v.ClientLanguage))
	sb.WriteString(fmt.Sprintf("Start:    %s\n", v.StartTime.UTC().Format("2006-01-02 15:04 MST")))
	sb.WriteString(fmt.Sprintf("End:      %s", v.EndTime.UTC().Format("2006-01-02 15:04 MST")))
	if len(v.RequiredSkills) > 0 {
		sb.WriteString(fmt.Sprintf("\nSkills:   %s", truncate(strings.Join(v.RequiredSkills, ", "), 40)))
	}

	p.printBox("VACANCY", sb.String())
}

// PrintRanking outputs the top ranked candidates, marking the chosen one.
// Names come from candidates; workers missing there are shown by id.
func (p *Printer) PrintRanking(result *types.RankingResult, candidates []types.CandidateRow) {
	if result == nil {
		return
	}
	if len(result.Ranked) == 0 {
		p.printBox("RANKING", "No eligible candidates")
		return
	}

	names := make(map[string]string, len(candidates))
	for _, c := range candidates {
		names[c.WorkerID] = c.Name
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Mode: %s   Candidates: %d\n\n", result.Mode, len(result.Ranked)))

	count := min(len(result.Ranked), maxItemsToShow)
	for i := 0; i < count; i++ {
		rc := result.Ranked[i]
		label := rc.WorkerID
		if name, ok := names[rc.WorkerID]; ok && name != "" {
			label = name
		}
		marker := " "
		if rc.WorkerID == result.ChosenID {
			marker = "★"
		}
		sb.WriteString(fmt.Sprintf("%s #%d  %s\n", marker, i+1, label))
		sb.WriteString(fmt.Sprintf("    Score: %.2f  (dist %.2f, skills %.2f, rel %.2f, lang %.2f)\n",
			rc.FinalScore, rc.FeatureScores.Distance, rc.FeatureScores.Skills,
			rc.FeatureScores.Reliability, rc.FeatureScores.Language))
		if rc.Rationale != "" {
			sb.WriteString(fmt.Sprintf("    %s\n", truncate(rc.Rationale, 48)))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(result.Ranked) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more candidates", len(result.Ranked)-maxItemsToShow))
	}
	if len(result.Redactions) > 0 {
		sb.WriteString(fmt.Sprintf("\nRedacted before ranking: %s", strings.Join(result.Redactions, ", ")))
	}

	p.printBox("RANKING", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRun outputs a run with its outreach attempts, oldest first.
func (p *Printer) PrintRun(run *types.BackfillRun, attempts []types.BackfillAttempt) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Shift:    %s\n", run.ShiftID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("Deadline: %s\n", run.DeadlineAt.UTC().Format("2006-01-02 15:04:05 MST")))
	if run.ChosenWorkerID != nil {
		sb.WriteString(fmt.Sprintf("Chosen:   %s\n", *run.ChosenWorkerID))
	}

	if len(attempts) == 0 {
		sb.WriteString("\nNo outreach attempts")
	} else {
		sb.WriteString(fmt.Sprintf("\nAttempts (%d):\n", len(attempts)))
		for _, a := range attempts {
			sb.WriteString(fmt.Sprintf("  • %s via %s: %s\n", a.WorkerID, a.Channel, a.Status))
		}
	}

	p.printBox("BACKFILL RUN", strings.TrimSuffix(sb.String(), "\n"))
}
