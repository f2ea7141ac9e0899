package export

import (
	"context"

	"goalpost/internal/core"
)

// Ports for outbound progress adapters.
type (
	ProgressWriter interface {
		Append(ctx context.Context, r core.ProgressReport) (rowRef string, err error)
	}

	// ProgressLister reads back previously exported snapshot rows.
	ProgressLister interface {
		List(ctx context.Context) ([]core.ProgressReport, error)
	}
)
