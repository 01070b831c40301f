package output

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/leaprun/internal/runner"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// lineWidth is the column the dot leaders of progress lines pad to.
const lineWidth = 80

// Presenter prints runner progress. It is safe for concurrent use.
type Presenter struct {
	r   *Renderer
	now func() time.Time

	mu       sync.Mutex
	problems []core.RunOutcome
}

var _ runner.Presenter = (*Presenter)(nil)

// NewPresenter creates a presenter writing through r.
func NewPresenter(r *Renderer) *Presenter {
	return &Presenter{r: r, now: time.Now}
}

// StartLine implements runner.Presenter.
func (p *Presenter) StartLine(description string, index, total int) {
	if p.json() {
		p.emit(RunEvent{Event: EventNodeStart, Index: index, Total: total, Description: description})
		return
	}
	s := p.r.Styles()
	p.line(index, total, "START "+description, s.Muted.Render("[RUN]"))
}

// SkipLine implements runner.Presenter.
func (p *Presenter) SkipLine(node *core.Node, index, total int) {
	if p.json() {
		p.emit(RunEvent{Event: EventNodeSkip, Index: index, Total: total, Node: node.UniqueID, State: string(core.StateSkipped)})
		return
	}
	s := p.r.Styles()
	p.line(index, total, s.Warning.Render("SKIP")+" relation "+node.RelationName(), s.Warning.Render("[SKIP]"))
}

// ModelResultLine implements runner.Presenter.
func (p *Presenter) ModelResultLine(description string, outcome core.RunOutcome, index, total int) {
	p.result(description, outcome, index, total, "created", "creating")
}

// ArchiveResultLine implements runner.Presenter.
func (p *Presenter) ArchiveResultLine(description string, outcome core.RunOutcome, index, total int) {
	p.result(description, outcome, index, total, "archived", "archiving")
}

func (p *Presenter) result(description string, outcome core.RunOutcome, index, total int, done, doing string) {
	p.track(outcome)
	if p.json() {
		p.emitComplete(description, outcome, index, total)
		return
	}

	s := p.r.Styles()
	if outcome.Errored() {
		p.line(index, total, s.Error.Render("ERROR")+" "+doing+" "+description, p.bracket(s.Error, "ERROR", outcome))
		return
	}
	p.line(index, total, s.Success.Render("OK")+" "+done+" "+description, p.bracket(s.Success, outcome.Status, outcome))
}

// TestResultLine implements runner.Presenter.
func (p *Presenter) TestResultLine(description string, outcome core.RunOutcome, index, total int) {
	p.track(outcome)
	if p.json() {
		p.emitComplete(description, outcome, index, total)
		return
	}

	s := p.r.Styles()
	var verb string
	var style lipgloss.Style
	switch outcome.State() {
	case core.StateErrored:
		verb, style = "ERROR", s.Error
	case core.StateFailed:
		verb, style = fmt.Sprintf("FAIL %d", outcome.Failures), s.Error
	default:
		verb, style = "PASS", s.Success
	}
	p.line(index, total, style.Render(verb)+" "+description, p.bracket(style, verb, outcome))
}

// SummaryLine implements runner.Presenter.
func (p *Presenter) SummaryLine(counts string, elapsed time.Duration) {
	if p.json() {
		e := RunEvent{Event: EventRunComplete, Summary: counts}
		if elapsed != runner.Unmeasured {
			e.TotalMS = elapsed.Milliseconds()
		}
		p.emit(e)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.r.Println()
	if elapsed == runner.Unmeasured {
		p.r.Printf("Finished running %s.\n", counts)
		return
	}
	p.r.Printf("Finished running %s in %s.\n", counts, seconds(elapsed))
}

// Problems returns the errored and failed outcomes seen so far.
func (p *Presenter) Problems() []core.RunOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.RunOutcome(nil), p.problems...)
}

func (p *Presenter) track(o core.RunOutcome) {
	if !o.Errored() && !o.Failed() {
		return
	}
	p.mu.Lock()
	p.problems = append(p.problems, o)
	p.mu.Unlock()
}

func (p *Presenter) json() bool {
	return p.r.EffectiveMode() == ModeJSON
}

func (p *Presenter) emit(e RunEvent) {
	e.Timestamp = p.now().UTC().Format(time.RFC3339)
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.r.JSON(e)
}

func (p *Presenter) emitComplete(description string, o core.RunOutcome, index, total int) {
	p.emit(RunEvent{
		Event:       EventNodeComplete,
		Index:       index,
		Total:       total,
		Node:        o.Node.UniqueID,
		Description: description,
		State:       string(o.State()),
		Status:      o.Status,
		Failures:    o.Failures,
		Error:       o.Error,
		ExecutionMS: o.ExecutionTime.Milliseconds(),
	})
}

// bracket renders "[<label> in 0.12s]".
func (p *Presenter) bracket(style lipgloss.Style, label string, o core.RunOutcome) string {
	return "[" + style.Render(label) + " in " + seconds(o.ExecutionTime) + "]"
}

// line prints "HH:MM:SS | n of total <msg>.... <suffix>". Dots pad the
// unstyled message to lineWidth.
func (p *Presenter) line(index, total int, msg, suffix string) {
	prefix := fmt.Sprintf("%d of %d ", index, total)
	dots := lineWidth - lipgloss.Width(prefix+msg)
	if dots < 4 {
		dots = 4
	}
	stamp := p.r.Styles().Muted.Render(p.now().Format("15:04:05"))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.r.Printf("%s | %s%s%s %s\n", stamp, prefix, msg, strings.Repeat(".", dots), suffix)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
