package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmichalski/clocksync/pkg/models"
)

// PagedSource streams a full collection endpoint page by page. A page
// returning fewer records than the requested page size is the termination
// signal. Paged resources are snapshots: the window is ignored.
type PagedSource struct {
	Client   *Client
	Endpoint string
	PageSize int
}

func (p *PagedSource) Records(ctx context.Context, _ models.Window, yield func(map[string]any) error) error {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/workspaces/%s/%s?page=%d&page-size=%d",
			p.Client.BaseURL, p.Client.WorkspaceID, p.Endpoint, page, pageSize)

		body, err := p.Client.do(ctx, "GET", url, nil)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}

		var records []map[string]any
		if err := json.Unmarshal(body, &records); err != nil {
			return fmt.Errorf("page %d: decoding response: %w", page, err)
		}

		for _, rec := range records {
			if err := yield(rec); err != nil {
				return err
			}
		}

		// short page means last page
		if len(records) < pageSize {
			return nil
		}
	}
}

// reportRequest is the summary report query for one day.
type reportRequest struct {
	DateRangeStart string        `json:"dateRangeStart"`
	DateRangeEnd   string        `json:"dateRangeEnd"`
	DateRangeType  string        `json:"dateRangeType"`
	AmountShown    string        `json:"amountShown"`
	SummaryFilter  summaryFilter `json:"summaryFilter"`
}

type summaryFilter struct {
	Groups []string `json:"groups"`
}

// ReportSource issues one summary-report request per calendar day of the
// sub-window, accumulating all records returned for a day before advancing
// to the next. Each record is stamped with its fetch day in the "date" field.
type ReportSource struct {
	Client *Client
	Groups []string
}

func (r *ReportSource) Records(ctx context.Context, win models.Window, yield func(map[string]any) error) error {
	url := fmt.Sprintf("%s/workspaces/%s/reports/summary", r.Client.ReportsURL, r.Client.WorkspaceID)

	groups := r.Groups
	if len(groups) == 0 {
		groups = []string{"USER", "PROJECT", "TAG"}
	}

	for day := win.Start; day.Before(win.End); day = day.AddDate(0, 0, 1) {
		payload, err := json.Marshal(reportRequest{
			DateRangeStart: day.Format(time.RFC3339),
			DateRangeEnd:   day.AddDate(0, 0, 1).Format(time.RFC3339),
			DateRangeType:  "ABSOLUTE",
			AmountShown:    "EARNED",
			SummaryFilter:  summaryFilter{Groups: groups},
		})
		if err != nil {
			return err
		}

		body, err := r.Client.do(ctx, "POST", url, payload)
		if err != nil {
			return fmt.Errorf("day %s: %w", day.Format("2006-01-02"), err)
		}

		var records []map[string]any
		if err := json.Unmarshal(body, &records); err != nil {
			return fmt.Errorf("day %s: decoding response: %w", day.Format("2006-01-02"), err)
		}

		for _, rec := range records {
			rec["date"] = day.Format("2006-01-02")
			if err := yield(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
