package sources

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var (
	_ core.SourceLister = ArgsLister(nil)
	_ core.SourceLister = (*FileLister)(nil)
	_ core.SourceLister = (*SheetsLister)(nil)
)

// Normalize trims entries, drops blanks and skips a leading header cell such as "URL" or "Link".
func Normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if len(out) == 0 && isHeader(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isHeader(v string) bool {
	if strings.Contains(v, "://") {
		return false
	}
	l := strings.ToLower(v)
	return strings.Contains(l, "url") || strings.Contains(l, "link") || strings.Contains(l, "source")
}

// ArgsLister serves URLs given on the command line.
type ArgsLister []string

func (a ArgsLister) List(ctx context.Context) ([]string, error) {
	return Normalize(a), nil
}

// FileLister reads one URL per line. Lines starting with # are ignored.
type FileLister struct {
	Path string
}

func (f *FileLister) List(ctx context.Context) ([]string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer fh.Close()

	var lines []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return Normalize(lines), nil
}

// SheetsLister reads the first column of a Google Sheets range.
type SheetsLister struct {
	svc     *sheets.Service
	sheetID string
	rng     string
}

func NewSheetsLister(ctx context.Context, credentialsJSON, sheetID, rng string, opts ...option.ClientOption) (*SheetsLister, error) {
	if sheetID == "" {
		return nil, fmt.Errorf("GOOGLE_SHEET_ID not set")
	}
	if credentialsJSON != "" {
		opts = append([]option.ClientOption{
			option.WithCredentialsJSON([]byte(credentialsJSON)),
			option.WithScopes(sheets.SpreadsheetsReadonlyScope),
		}, opts...)
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewSheetsListerWithService(svc, sheetID, rng), nil
}

func NewSheetsListerWithService(svc *sheets.Service, sheetID, rng string) *SheetsLister {
	if rng == "" {
		rng = "A:A"
	}
	return &SheetsLister{svc: svc, sheetID: sheetID, rng: rng}
}

func (s *SheetsLister) List(ctx context.Context) ([]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.sheetID, s.rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s!%s: %w", s.sheetID, s.rng, err)
	}
	cells := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		cells = append(cells, fmt.Sprint(row[0]))
	}
	return Normalize(cells), nil
}
