package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Generator — интерфейс (удобно мокать в тестах)
type Generator interface {
	Generate(report RunReport) ([]byte, error)
}

// RunReport — итог одного запуска move/copy для PDF-отчёта.
type RunReport struct {
	RunID      string
	Action     string
	StartedAt  time.Time
	FinishedAt time.Time
	Sections   []Section
}

type Section struct {
	Title   string
	Success bool
	Message string
	Fields  []Field
	Items   []string // строки-примеры: перенесённые/скопированные/ошибки
}

type Field struct {
	Key   string
	Value string
}

// ReportGenerator рисует отчёт через gofpdf. Без TTF-шрифта падает обратно на Helvetica
// (кириллица тогда не отображается).
type ReportGenerator struct {
	FontPath string
	fontName string
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	return &ReportGenerator{FontPath: fontPath, fontName: "DejaVu"}
}

func (g *ReportGenerator) Generate(r RunReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("amoflow run "+r.RunID, true)
	pdf.SetAuthor("amoflow", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	font, tr := g.setupFont(pdf)
	pdf.AddPage()

	// ===== Заголовок
	pdf.SetFont(font, "B", 18)
	pdf.CellFormat(0, 10, tr("Отчёт amoCRM"), "", 1, "C", false, 0, "")
	pdf.SetFont(font, "", 11)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s  %s", r.Action, r.StartedAt.Format("02.01.2006 15:04:05"))), "", 1, "C", false, 0, "")
	g.hr(pdf)

	g.kvLine(pdf, font, tr, "Run ID", r.RunID)
	g.kvLine(pdf, font, tr, "Длительность", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())
	pdf.Ln(2)
	g.hr(pdf)

	for _, s := range r.Sections {
		g.sectionTitle(pdf, font, tr, s.Title)
		status := "успешно"
		if !s.Success {
			status = "не выполнено"
		}
		g.kvLine(pdf, font, tr, "Статус", status)
		g.kvLine(pdf, font, tr, "Сообщение", s.Message)
		for _, f := range s.Fields {
			g.kvLine(pdf, font, tr, f.Key, f.Value)
		}
		if len(s.Items) > 0 {
			pdf.Ln(1)
			pdf.SetFont(font, "", 10)
			for _, it := range s.Items {
				pdf.MultiCell(0, 5, tr("• "+it), "", "L", false)
			}
		}
		pdf.Ln(2)
		g.hr(pdf)
	}

	// ===== Нумерация страниц
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(font, "", 9)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Стр. %d/{nb}", pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders the report to path, creating parent directories.
func (g *ReportGenerator) WriteFile(r RunReport, path string) error {
	data, err := g.Generate(r)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ===== helpers =====

func (g *ReportGenerator) setupFont(pdf *gofpdf.Fpdf) (string, func(string) string) {
	if g.FontPath != "" {
		if _, err := os.Stat(g.FontPath); err == nil {
			// AddUTF8Font принимает путь до TTF
			pdf.AddUTF8Font(g.fontName, "", g.FontPath)
			pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
			return g.fontName, func(s string) string { return s }
		}
	}
	return "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
}

func (g *ReportGenerator) sectionTitle(pdf *gofpdf.Fpdf, font string, tr func(string) string, s string) {
	pdf.SetFont(font, "B", 13)
	pdf.CellFormat(0, 8, tr(s), "", 1, "L", false, 0, "")
	pdf.SetFont(font, "", 11)
}

func (g *ReportGenerator) kvLine(pdf *gofpdf.Fpdf, font string, tr func(string) string, key, val string) {
	pdf.SetFont(font, "B", 11)
	pdf.CellFormat(50, 6, tr(key+":"), "", 0, "L", false, 0, "")
	pdf.SetFont(font, "", 11)
	pdf.MultiCell(0, 6, tr(val), "", "L", false)
}

func (g *ReportGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}
