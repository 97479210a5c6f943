// Package sheets renders dashboards into a Google Sheets spreadsheet. Each
// chart gets its own tab holding the chart data as a table; metrics and lists
// are written to tabs named after their section.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"momentum/internal/render"
)

// Client is a render.Renderer backed by the Sheets API.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string

	mu   sync.Mutex
	tabs map[string]bool
}

var (
	_ render.Renderer  = (*Client)(nil)
	_ render.Destroyer = (*Client)(nil)
)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID string
	// Prefix is prepended to every tab name, e.g. "2025 ".
	Prefix string
	// CredentialsJSON overrides the environment lookup when set.
	CredentialsJSON []byte
}

// New creates a client. Without explicit credentials it uses an OAuth user
// token when GOOGLE_OAUTH_TOKEN_FILE is set, and otherwise a service account
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	auth, err := clientOption(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets sink ready", "spreadsheet_id", cfg.SpreadsheetID)
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		prefix:        cfg.Prefix,
		tabs:          make(map[string]bool),
	}, nil
}

func clientOption(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	creds := cfg.CredentialsJSON
	if len(creds) == 0 {
		if tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); tokenFile != "" {
			oc, err := OAuthConfigFromEnv()
			if err != nil {
				return nil, err
			}
			tok, err := LoadToken(tokenFile)
			if err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "Using OAuth user credentials", "token_file", tokenFile)
			return goption.WithHTTPClient(oc.Client(ctx, tok)), nil
		}
		var err error
		if creds, err = credentialsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return goption.WithCredentialsJSON(creds), nil
}

func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) RenderChart(ctx context.Context, ch render.Chart) error {
	return c.writeTab(ctx, c.tabName("chart "+ch.ID), render.ChartTable(ch))
}

func (c *Client) RenderMetrics(ctx context.Context, section string, metrics []render.Metric) error {
	return c.writeTab(ctx, c.tabName(section), render.MetricTable(metrics))
}

func (c *Client) RenderList(ctx context.Context, listID string, items []render.ListItem) error {
	return c.writeTab(ctx, c.tabName(listID), render.ListTable(items))
}

// DestroyChart clears the chart's tab so stale rows never survive a shorter redraw.
func (c *Client) DestroyChart(ctx context.Context, id string) error {
	tab := c.tabName("chart " + id)
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quote(tab), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}
	return nil
}

func (c *Client) writeTab(ctx context.Context, tab string, rows [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quote(tab), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}
	rng := quote(tab) + "!A1"
	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", tab, err)
	}
	return nil
}

// ensureTab adds the tab if the spreadsheet does not have it yet.
func (c *Client) ensureTab(ctx context.Context, tab string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabs[tab] {
		return nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.tabs[s.Properties.Title] = true
		}
	}
	if c.tabs[tab] {
		return nil
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	c.tabs[tab] = true
	return nil
}

func (c *Client) tabName(name string) string {
	return strings.TrimSpace(c.prefix + name)
}

// quote wraps a tab name for A1 notation.
func quote(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// YearPrefix returns "<year> " for tab names, matching how yearly workbooks are organised.
func YearPrefix(t time.Time) string {
	return strconv.Itoa(t.Year()) + " "
}
