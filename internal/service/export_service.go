package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/internal/models"
	"github.com/noah-isme/campus-attendance-api/pkg/export"
	"github.com/noah-isme/campus-attendance-api/pkg/storage"
)

// Column order of the per-session attendance sheet.
var sessionSheetHeaders = []string{"Student Name", "Email", "Status", "Marked At", "Session Date", "Year", "Branch", "Division"}

var registerHeaders = []string{"Session Date", "Session ID", "Subject", "Student Name", "Email", "Status", "Marked At", "Year", "Branch", "Division"}

const exportTimeLayout = "2006-01-02 15:04:05"

type exportAttendanceSource interface {
	SessionExportRows(ctx context.Context, sessionID string) ([]models.SessionExportRow, error)
	RegisterRows(ctx context.Context, teacherID string, from, to *time.Time) ([]models.RegisterRow, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, subtitle ...string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// FileExport is a rendered document returned inline to the caller.
type FileExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportResult captures a stored register export.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders attendance sheets and registers and stores the
// asynchronous ones behind signed download URLs.
type ExportService struct {
	attendance exportAttendanceSource
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// quoted CSV exporter and the default PDF exporter.
func NewExportService(attendance exportAttendanceSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter(export.WithQuotedFields())
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("Campus Attendance")
	}
	return &ExportService{
		attendance: attendance,
		storage:    store,
		csv:        csv,
		pdf:        pdf,
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ExportSession renders every attendance row of the session, ordered by student name.
func (s *ExportService) ExportSession(ctx context.Context, session *models.Session, format models.ReportFormat) (*FileExport, error) {
	rows, err := s.attendance.SessionExportRows(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{Headers: sessionSheetHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student Name": row.StudentName,
			"Email":        row.Email,
			"Status":       string(row.Status),
			"Marked At":    formatMarkedAt(row.MarkedAt),
			"Session Date": row.SessionDate.UTC().Format(exportTimeLayout),
			"Year":         deref(row.Year),
			"Branch":       deref(row.Branch),
			"Division":     deref(row.Division),
		})
	}

	base := fmt.Sprintf("attendance_session_%s_%s", session.ID, s.now().Format("2006-01-02"))
	switch format {
	case models.ReportFormatPDF:
		subtitle := session.CreatedAt.UTC().Format(exportTimeLayout)
		if class, ok := session.Coordinate(); ok {
			subtitle = class.String() + " | " + subtitle
		}
		payload, err := s.pdf.Render(dataset, "Attendance "+deref(session.Subject), subtitle)
		if err != nil {
			return nil, err
		}
		return &FileExport{Filename: base + ".pdf", ContentType: "application/pdf", Data: payload}, nil
	default:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, err
		}
		return &FileExport{Filename: base + ".csv", ContentType: "text/csv", Data: payload}, nil
	}
}

// Generate renders a teacher register job, stores it and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if job.Type != models.ReportTypeTeacherRegister {
		return nil, fmt.Errorf("unsupported report type %s", job.Type)
	}
	params := job.Params
	rows, err := s.attendance.RegisterRows(ctx, params.TeacherID, params.From, params.To)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{Headers: registerHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Session Date": row.SessionDate.UTC().Format(exportTimeLayout),
			"Session ID":   row.SessionID,
			"Subject":      deref(row.Subject),
			"Student Name": row.StudentName,
			"Email":        row.Email,
			"Status":       string(row.Status),
			"Marked At":    formatMarkedAt(row.MarkedAt),
			"Year":         deref(row.Year),
			"Branch":       deref(row.Branch),
			"Division":     deref(row.Division),
		})
	}

	var payload []byte
	switch params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Attendance Register", registerPeriod(params.From, params.To))
	default:
		err = fmt.Errorf("unsupported format %s", params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("register_%s_%s.%s", sanitizeFilename(params.TeacherID), s.now().Format("20060102_150405"), params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}

	s.logger.Info("register export stored", zap.String("job_id", job.ID), zap.Int("rows", len(rows)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.SignedToken, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func formatMarkedAt(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.UTC().Format(exportTimeLayout)
}

func registerPeriod(from, to *time.Time) string {
	switch {
	case from != nil && to != nil:
		return fmt.Sprintf("%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	case from != nil:
		return "from " + from.Format("2006-01-02")
	case to != nil:
		return "until " + to.Format("2006-01-02")
	default:
		return "all sessions"
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
