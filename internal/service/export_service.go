package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wxsync/internal/domain"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ExportService writes customer data to files under the configured export
// directory.
type ExportService struct {
	customers   domain.CustomerStore
	credentials *CredentialService
	exportPath  string
	logger      *zerolog.Logger
}

func NewExportService(customers domain.CustomerStore, credentials *CredentialService, exportPath string, logger *zerolog.Logger) *ExportService {
	return &ExportService{
		customers:   customers,
		credentials: credentials,
		exportPath:  exportPath,
		logger:      logger,
	}
}

// ExportUnionIDs writes the distinct union ids to a plain text file, one per
// line, and returns the file path.
func (s *ExportService) ExportUnionIDs(ctx context.Context, operatorID string) (string, error) {
	corpID, err := s.credentials.GetCorpID(ctx, operatorID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.exportPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	ids, err := s.customers.GetCustomerUnionIDs(ctx, operatorID, corpID)
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("unionids_%s.txt", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(s.exportPath, fileName)

	content := strings.Join(ids, "\n")
	if len(ids) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	s.logger.Info().Str("file_path", filePath).Int("count", len(ids)).Msg("union id export created")
	return filePath, nil
}

// ExportCustomersToExcel writes the operator's customers to an xlsx file and
// returns the file path.
func (s *ExportService) ExportCustomersToExcel(ctx context.Context, operatorID string) (string, error) {
	corpID, err := s.credentials.GetCorpID(ctx, operatorID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.exportPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	total, err := s.customers.CountCustomers(ctx, operatorID, corpID)
	if err != nil {
		return "", err
	}
	customers, err := s.customers.GetCustomers(ctx, operatorID, corpID, 0, total)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Customers"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"External ID", "Name", "Staff", "Corp Name", "Union ID",
		"Remark", "Description", "Tags", "Add Way", "State", "Added At",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeader, style)

	for i, customer := range customers {
		row := i + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), customer.ExternalID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), customer.Name)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), customer.StaffID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), customer.CorpName)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), customer.UnionID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), customer.Remark)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), customer.Description)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), strings.Join(customer.TagIDs, ", "))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), customer.AddWay)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), customer.State)
		if customer.ContactTime > 0 {
			_ = f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), time.Unix(customer.ContactTime, 0).Format("02.01.2006 15:04"))
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	_ = f.SetColWidth(sheetName, "B", "B", 20)
	_ = f.SetColWidth(sheetName, "C", "E", 18)
	_ = f.SetColWidth(sheetName, "F", "G", 30)
	_ = f.SetColWidth(sheetName, "H", "K", 18)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("customers_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(s.exportPath, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	s.logger.Info().Str("file_path", filePath).Int("count", len(customers)).Msg("customer Excel export created")
	return filePath, nil
}
