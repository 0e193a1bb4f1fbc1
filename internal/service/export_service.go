package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	"github.com/mysociety/ceuk-marking-sub000/pkg/export"
)

// categoryHeaders maps authority categories to the short column labels used
// in the published tables.
var categoryHeaders = []struct {
	Category string
	Header   string
}{
	{models.CategorySingleTier, "single tier"},
	{models.CategoryDistrict, "district"},
	{models.CategoryCounty, "county"},
	{models.CategoryNorthernIreland, "NI"},
	{models.CategoryCombinedAuthority, "CA"},
}

// ExportService turns a ScoringResult into the published tabular exports
// and renders them as CSV or PDF.
type ExportService struct {
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(csv *export.CSVExporter, pdf *export.PDFExporter, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger}
}

// Render builds the dataset for the export type and encodes it in the
// requested format, returning the encoded bytes and a filename.
func (s *ExportService) Render(result *models.ScoringResult, exportType models.ExportType, format models.ExportFormat) ([]byte, string, error) {
	dataset, title, err := s.Build(result, exportType)
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("%s_%s.%s", sanitizeLabel(result.SessionLabel), exportType, format)
	switch format {
	case models.ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		return data, filename, err
	case models.ExportFormatPDF:
		data, err := s.pdf.Render(dataset, title)
		return data, filename, err
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// Build assembles the dataset for one export type.
func (s *ExportService) Build(result *models.ScoringResult, exportType models.ExportType) (export.Dataset, string, error) {
	switch exportType {
	case models.ExportTypeSectionScores:
		return s.buildSectionScores(result), "Section scores " + result.SessionLabel, nil
	case models.ExportTypeTotals:
		return s.buildTotals(result), "Council totals " + result.SessionLabel, nil
	case models.ExportTypeRawAndWeighted:
		return s.buildRawAndWeighted(result), "Raw and weighted scores " + result.SessionLabel, nil
	case models.ExportTypeMaxes:
		return s.buildMaxes(result), "Maximum scores " + result.SessionLabel, nil
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %q", exportType)
	}
}

// buildSectionScores is the per-council grid of raw section scores: one row
// per council, one column per section. Sections a council isn't scored
// against are left blank, which keeps combined authorities in the same file
// as everyone else.
func (s *ExportService) buildSectionScores(result *models.ScoringResult) export.Dataset {
	sections := allSectionTitles(result)
	headers := append([]string{"council", "country", "category"}, sections...)
	headers = append(headers, "raw total")

	rows := make([]map[string]string, 0, len(result.Authorities))
	for _, name := range sortedCouncils(result) {
		score := result.Authorities[name]
		row := map[string]string{
			"council":   name,
			"country":   score.Country,
			"category":  score.Category,
			"raw total": strconv.Itoa(score.RawTotal),
		}
		for title, section := range score.Sections {
			row[title] = strconv.Itoa(section.Raw)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// buildTotals is the per-council summary grid.
func (s *ExportService) buildTotals(result *models.ScoringResult) export.Dataset {
	headers := []string{"council", "country", "category", "raw total", "percent total", "weighted total"}

	rows := make([]map[string]string, 0, len(result.Authorities))
	for _, name := range sortedCouncils(result) {
		score := result.Authorities[name]
		rows = append(rows, map[string]string{
			"council":        name,
			"country":        score.Country,
			"category":       score.Category,
			"raw total":      strconv.Itoa(score.RawTotal),
			"percent total":  formatFloat(score.PercentTotal),
			"weighted total": formatFloat(score.WeightedTotal),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// buildRawAndWeighted is the long-format table pairing every council-section
// raw outcome with its weighted outcome.
func (s *ExportService) buildRawAndWeighted(result *models.ScoringResult) export.Dataset {
	headers := []string{"council", "section", "raw", "raw percent", "raw weighted", "unweighted percentage", "weighted"}

	var rows []map[string]string
	for _, name := range sortedCouncils(result) {
		score := result.Authorities[name]
		for _, title := range sortedSections(score.Sections) {
			section := score.Sections[title]
			rows = append(rows, map[string]string{
				"council":               name,
				"section":               title,
				"raw":                   strconv.Itoa(section.Raw),
				"raw percent":           formatFloat(section.RawPercent),
				"raw weighted":          formatFloat(section.RawWeighted),
				"unweighted percentage": formatFloat(section.UnweightedPercentage),
				"weighted":              formatFloat(section.Weighted),
			})
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// buildMaxes is the session max table: per section, the raw and weighted
// maximum for each authority category.
func (s *ExportService) buildMaxes(result *models.ScoringResult) export.Dataset {
	headers := []string{"section", "measure"}
	for _, ch := range categoryHeaders {
		headers = append(headers, ch.Header)
	}

	maxes := result.Maxes
	var rows []map[string]string
	for _, title := range sortedSectionMaxes(maxes) {
		raw := map[string]string{"section": title, "measure": "raw"}
		weighted := map[string]string{"section": title, "measure": "weighted"}
		for _, ch := range categoryHeaders {
			raw[ch.Header] = strconv.Itoa(maxes.SectionMaxes[title][ch.Category])
			weighted[ch.Header] = formatFloat(maxes.SectionWeightedMaxes[title][ch.Category])
		}
		rows = append(rows, raw, weighted)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func allSectionTitles(result *models.ScoringResult) []string {
	seen := map[string]bool{}
	var titles []string
	for _, score := range result.Authorities {
		for title := range score.Sections {
			if !seen[title] {
				seen[title] = true
				titles = append(titles, title)
			}
		}
	}
	sort.Strings(titles)
	return titles
}

func sortedCouncils(result *models.ScoringResult) []string {
	names := make([]string, 0, len(result.Authorities))
	for name := range result.Authorities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedSections(sections map[string]models.SectionScore) []string {
	titles := make([]string, 0, len(sections))
	for title := range sections {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

func sortedSectionMaxes(maxes *models.SessionMaxes) []string {
	titles := make([]string, 0, len(maxes.SectionMaxes))
	for title := range maxes.SectionMaxes {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func sanitizeLabel(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "_")
}
