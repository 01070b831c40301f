package runner

import (
	"time"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Unmeasured is passed as the batch elapsed time when it was not measured.
const Unmeasured time.Duration = -1

// Presenter shows run progress to the operator. It is observational only:
// nothing it does can change an outcome.
type Presenter interface {
	StartLine(description string, index, total int)
	SkipLine(node *core.Node, index, total int)
	ModelResultLine(description string, outcome core.RunOutcome, index, total int)
	TestResultLine(description string, outcome core.RunOutcome, index, total int)
	ArchiveResultLine(description string, outcome core.RunOutcome, index, total int)
	// SummaryLine receives Unmeasured when elapsed is unknown.
	SummaryLine(counts string, elapsed time.Duration)
}

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) StartLine(string, int, int) {}
func (NopPresenter) SkipLine(*core.Node, int, int) {}
func (NopPresenter) ModelResultLine(string, core.RunOutcome, int, int) {}
func (NopPresenter) TestResultLine(string, core.RunOutcome, int, int) {}
func (NopPresenter) ArchiveResultLine(string, core.RunOutcome, int, int) {}
func (NopPresenter) SummaryLine(string, time.Duration) {}

var _ Presenter = NopPresenter{}
