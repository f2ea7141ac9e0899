package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"goalpost/internal/core"
	ports "goalpost/internal/export"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client appends goal progress snapshots to a Google Sheets tab.
// Each Append writes one row: goal id, user, name, status, target,
// contributed, percent, as-of date.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var (
	_ ports.ProgressWriter = (*Client)(nil)
	_ ports.ProgressLister = (*Client)(nil)
)

// New creates a Sheets client from explicit settings. Credentials come
// from inline JSON when present, otherwise from the service account file.
func New(ctx context.Context, spreadsheetID, sheetName, credentialsFile, credentialsJSON string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Progress"
	}

	svc, err := newSheetsService(ctx, credentialsFile, credentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context, credentialsFile, credentialsJSON string) (*gsheet.Service, error) {
	credentialsJSON = strings.TrimSpace(credentialsJSON)
	credentialsFile = strings.TrimSpace(credentialsFile)

	var raw []byte
	switch {
	case credentialsJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials", "json_length", len(credentialsJSON))
		raw = []byte(credentialsJSON)
	case credentialsFile != "":
		slog.InfoContext(ctx, "Reading service account credentials from file", "path", credentialsFile)
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) Append(ctx context.Context, r core.ProgressReport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if r.GoalID == 0 {
		return "", errors.New("progress report has no goal id")
	}

	// Find the next empty row from the goal id column.
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", c.sheetName, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:H%d", c.sheetName, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		r.GoalID,
		r.UserID,
		r.Name,
		string(r.Status),
		r.Target.String(),
		r.Contributed.String(),
		r.Percent.String(),
		r.AsOf.String(),
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", dataRange, err)
	}

	return dataRange, nil
}

// List scans the progress sheet and parses rows back into reports.
// Parsing is best-effort; header and malformed rows are skipped.
func (c *Client) List(ctx context.Context) ([]core.ProgressReport, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []core.ProgressReport
	for _, row := range resp.Values {
		cols := toStrings(row)
		if len(cols) < 8 {
			continue
		}
		goalID, err := strconv.ParseInt(strings.TrimSpace(cols[0]), 10, 64)
		if err != nil {
			continue
		}
		target, err := decimal.NewFromString(normalizeDecimal(cols[4]))
		if err != nil {
			continue
		}
		contributed, err := decimal.NewFromString(normalizeDecimal(cols[5]))
		if err != nil {
			continue
		}
		percent, err := decimal.NewFromString(normalizeDecimal(cols[6]))
		if err != nil {
			continue
		}
		asOf, err := core.ParseDate(strings.TrimSpace(cols[7]))
		if err != nil {
			continue
		}
		out = append(out, core.ProgressReport{
			GoalID:      goalID,
			UserID:      strings.TrimSpace(cols[1]),
			Name:        strings.TrimSpace(cols[2]),
			Status:      core.GoalStatus(strings.TrimSpace(cols[3])),
			Target:      target,
			Contributed: contributed,
			Percent:     percent,
			AsOf:        asOf,
		})
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// normalizeDecimal accepts values Sheets may hand back with a decimal comma.
func normalizeDecimal(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
}
