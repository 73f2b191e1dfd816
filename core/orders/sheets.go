package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/m3rciful/menubot/core/logger"
)

// DefaultSpreadsheetName is used when no name or id is configured.
const DefaultSpreadsheetName = "Бот_Заказы_Вышивка"

const spreadsheetMime = "application/vnd.google-apps.spreadsheet"

var (
	// ErrSpreadsheetNotFound reports that no spreadsheet matched the configured name
	// or the service account lacks access to it.
	ErrSpreadsheetNotFound = errors.New("spreadsheet not found")
	// ErrSheetsAuth reports missing or rejected credentials.
	ErrSheetsAuth = errors.New("sheets authentication failed")
)

// SheetsOptions configures SheetsSink.
type SheetsOptions struct {
	// SpreadsheetID skips the by-name Drive lookup when set.
	SpreadsheetID   string
	SpreadsheetName string
	// CredentialsFile points at a service account JSON key. Empty uses
	// Application Default Credentials.
	CredentialsFile string
	// HTTPClient replaces credential lookup with a preauthorized client.
	HTTPClient *http.Client
	// SheetsEndpoint and DriveEndpoint override the API base URLs.
	SheetsEndpoint string
	DriveEndpoint  string
}

// SheetsSink appends records as rows to the first worksheet of a Google spreadsheet.
// Credentials and the target spreadsheet are resolved on the first Record call and
// cached once they succeed, so a misconfigured sink never blocks startup.
type SheetsSink struct {
	opts SheetsOptions
	name string

	mu            sync.Mutex
	sheets        *sheets.Service
	drive         *drive.Service
	spreadsheetID string
	sheetTitle    string
}

// NewSheetsSink returns a sink. No network or credential access happens here.
func NewSheetsSink(opts SheetsOptions) *SheetsSink {
	s := &SheetsSink{
		opts:          opts,
		name:          strings.TrimSpace(opts.SpreadsheetName),
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
	}
	if s.name == "" {
		s.name = DefaultSpreadsheetName
	}
	return s
}

// Record appends rec to the first worksheet.
func (s *SheetsSink) Record(ctx context.Context, rec Record) error {
	start := time.Now()
	svc, id, title, err := s.target(ctx)
	if err != nil {
		logger.Error(ctx, component, "sheets.resolve",
			slog.String("spreadsheet", s.name),
			slog.String("err", err.Error()),
		)
		return err
	}

	rng := "'" + strings.ReplaceAll(title, "'", "''") + "'!A1"
	row := &sheets.ValueRange{Values: [][]interface{}{rec.Row()}}
	_, err = svc.Spreadsheets.Values.Append(id, rng, row).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		err = classify(err)
		logger.Error(ctx, component, "sheets.append",
			slog.String("spreadsheet", s.name),
			slog.String("item_id", rec.ItemID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("append order row: %w", err)
	}
	logger.Info(ctx, component, "order.recorded",
		slog.String("backend", "sheets"),
		slog.String("spreadsheet", s.name),
		slog.String("item_id", rec.ItemID),
		slog.Int("price", rec.Price),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// target resolves and caches the API clients, the spreadsheet id and the first
// worksheet title. Failures are not cached.
func (s *SheetsSink) target(ctx context.Context) (*sheets.Service, string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sheets == nil {
		if err := s.connect(ctx); err != nil {
			return nil, "", "", err
		}
	}
	if s.spreadsheetID != "" && s.sheetTitle != "" {
		return s.sheets, s.spreadsheetID, s.sheetTitle, nil
	}
	if s.spreadsheetID == "" {
		id, err := s.lookupByName(ctx)
		if err != nil {
			return nil, "", "", err
		}
		s.spreadsheetID = id
	}
	title, err := s.firstSheetTitle(ctx, s.spreadsheetID)
	if err != nil {
		return nil, "", "", err
	}
	s.sheetTitle = title
	return s.sheets, s.spreadsheetID, s.sheetTitle, nil
}

func (s *SheetsSink) connect(ctx context.Context) error {
	// The services outlive this call, so token refreshes must not inherit its cancellation.
	svcCtx := context.WithoutCancel(ctx)

	base, err := s.clientOption(svcCtx)
	if err != nil {
		return err
	}
	sheetsOpts := []option.ClientOption{base}
	if s.opts.SheetsEndpoint != "" {
		sheetsOpts = append(sheetsOpts, option.WithEndpoint(s.opts.SheetsEndpoint))
	}
	driveOpts := []option.ClientOption{base}
	if s.opts.DriveEndpoint != "" {
		driveOpts = append(driveOpts, option.WithEndpoint(s.opts.DriveEndpoint))
	}

	sheetsSvc, err := sheets.NewService(svcCtx, sheetsOpts...)
	if err != nil {
		return fmt.Errorf("sheets client: %w", err)
	}
	driveSvc, err := drive.NewService(svcCtx, driveOpts...)
	if err != nil {
		return fmt.Errorf("drive client: %w", err)
	}
	s.sheets, s.drive = sheetsSvc, driveSvc
	return nil
}

func (s *SheetsSink) clientOption(ctx context.Context) (option.ClientOption, error) {
	if s.opts.HTTPClient != nil {
		return option.WithHTTPClient(s.opts.HTTPClient), nil
	}
	scopes := []string{sheets.SpreadsheetsScope, drive.DriveMetadataReadonlyScope}
	if path := strings.TrimSpace(s.opts.CredentialsFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read credentials: %v", ErrSheetsAuth, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSheetsAuth, err)
		}
		return option.WithCredentials(creds), nil
	}
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSheetsAuth, err)
	}
	return option.WithCredentials(creds), nil
}

func (s *SheetsSink) lookupByName(ctx context.Context) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		driveQuote(s.name), spreadsheetMime)
	list, err := s.drive.Files.List().
		Q(q).
		Fields("files(id,name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("lookup spreadsheet %q: %w", s.name, classify(err))
	}
	if len(list.Files) == 0 || list.Files[0].Id == "" {
		return "", fmt.Errorf("%w: %q", ErrSpreadsheetNotFound, s.name)
	}
	return list.Files[0].Id, nil
}

func (s *SheetsSink) firstSheetTitle(ctx context.Context, id string) (string, error) {
	doc, err := s.sheets.Spreadsheets.Get(id).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return "", fmt.Errorf("%w: id %s", ErrSpreadsheetNotFound, id)
		}
		return "", fmt.Errorf("read spreadsheet metadata: %w", classify(err))
	}
	if len(doc.Sheets) == 0 || doc.Sheets[0].Properties == nil {
		return "", fmt.Errorf("%w: spreadsheet %s has no worksheets", ErrSpreadsheetNotFound, id)
	}
	return doc.Sheets[0].Properties.Title, nil
}

// driveQuote escapes a value for a single-quoted Drive query string literal.
func driveQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// classify maps rejected credentials to ErrSheetsAuth and keeps other API errors intact.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrSheetsAuth, logger.SanitizeLimit(gerr.Message, 256))
	}
	return err
}
