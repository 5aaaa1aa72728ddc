package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
	}
}

// ExportResults renders every submission for the exam as an xlsx workbook.
// Returns the file contents and a suggested filename.
func (s *exportService) ExportResults(ctx context.Context, examID uint, actor *models.User) ([]byte, string, error) {
	if !models.CanPerform(actor.Role, models.ActionResultsExport) {
		return nil, "", NewPermissionError(actor.ID, examID, "results", "export", "insufficient role permissions")
	}

	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrExamNotFound
		}
		return nil, "", fmt.Errorf("failed to get exam: %w", err)
	}

	if actor.Role == models.RoleOrganization && exam.CreatedBy != actor.ID {
		return nil, "", NewPermissionError(actor.ID, examID, "results", "export", "not owner")
	}

	submissions, _, err := s.repo.Submission().ListByExam(ctx, examID, repositories.SubmissionFilters{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list submissions: %w", err)
	}

	// Resolve student names from the directory; missing entries fall back
	// to the raw id.
	studentIDs := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		studentIDs = append(studentIDs, sub.StudentID)
	}
	names := make(map[string]string, len(studentIDs))
	if users, err := s.repo.User().GetByIDs(ctx, studentIDs); err == nil {
		for _, u := range users {
			names[u.ID] = u.FullName
		}
	} else {
		s.logger.Warn("Failed to resolve student names for export", "exam_id", examID, "error", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Student ID", "Student Name", "Attempt", "Status", "Started At", "Submitted At", "Time Spent (min)", "Score", "Percentage", "Passed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, sub := range submissions {
		values := []interface{}{
			sub.StudentID,
			names[sub.StudentID],
			sub.AttemptNumber,
			string(sub.Status),
			sub.StartedAt.Format(time.RFC3339),
			"",
			sub.TimeSpent,
			sub.Score,
			sub.Percentage,
			sub.Passed,
		}
		if sub.SubmittedAt != nil {
			values[5] = sub.SubmittedAt.Format(time.RFC3339)
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("exam_%d_results_%s.xlsx", exam.ID, time.Now().Format("20060102"))

	s.logger.Info("Results exported",
		"exam_id", examID,
		"submissions", len(submissions),
		"exported_by", actor.ID)

	return buf.Bytes(), filename, nil
}
