package features

import (
	"fmt"
	"time"

	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/pkg/core"
)

// Split holds the three date-based partitions of a feature table.
type Split struct {
	Train      *table.Table
	Validation *table.Table
	Test       *table.Table
}

// SplitByDate partitions the table by the date column, measured back
// from the newest date: the last testDays become the test set, the
// validationDays before them the validation set, and everything older
// the training set. Rows exactly on a window boundary belong to no set.
func SplitByDate(t *table.Table, validationDays, testDays int) (*Split, error) {
	if validationDays <= 0 || testDays <= 0 {
		return nil, fmt.Errorf("validation and test windows must be positive, got %d and %d", validationDays, testDays)
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("cannot split an empty table")
	}

	dates, err := t.Column(core.ColDate)
	if err != nil {
		return nil, err
	}
	parsed := make([]time.Time, len(dates))
	var max time.Time
	for i, d := range dates {
		ts, err := time.Parse(DateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", d, err)
		}
		parsed[i] = ts
		if ts.After(max) {
			max = ts
		}
	}

	testCutoff := max.AddDate(0, 0, -testDays)
	trainCutoff := max.AddDate(0, 0, -(validationDays + testDays))

	return &Split{
		Train: t.Filter(func(i int) bool {
			return parsed[i].Before(trainCutoff)
		}),
		Validation: t.Filter(func(i int) bool {
			return parsed[i].After(trainCutoff) && parsed[i].Before(testCutoff)
		}),
		Test: t.Filter(func(i int) bool {
			return parsed[i].After(testCutoff)
		}),
	}, nil
}
