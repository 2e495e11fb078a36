// Package report renders the analysis result PDF.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"econfere-api/internal/domain/analysis"

	"github.com/go-pdf/fpdf"
)

var findings = []string{
	"Documento verificado com sucesso",
	"Nenhum ônus encontrado",
	"Matrícula válida e atualizada",
	"Dados do proprietário conferem",
	"Área do imóvel: 150m²",
	"Situação cadastral: Regular",
}

type Generator struct {
	dir string
	now func() time.Time
}

func NewGenerator(dir string) *Generator {
	return &Generator{dir: dir, now: time.Now}
}

// Generate writes relatorio_<id>_<unixms>.pdf into the results directory and
// returns its path.
func (g *Generator) Generate(ctx context.Context, in analysis.ReportInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	now := g.now()
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(18, 20, 18)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, tr("E-Confere - Análise de Documentos Imobiliários"), "", 0, "L", false, 0, "")
	})
	pdf.AddPage()

	heading := func(text string, size float64) {
		pdf.SetFont("Helvetica", "B", size)
		pdf.SetTextColor(30, 90, 168)
		pdf.CellFormat(0, 10, tr(text), "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	heading("RELATÓRIO DE ANÁLISE", 22)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, tr("Tipo de Documento: "+in.Tipo), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, tr("Arquivo Analisado: "+in.FileName), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, tr("Data da Análise: "+now.Format("02/01/2006")), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	heading("RESULTADOS DA ANÁLISE", 15)
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 11)
	for _, f := range findings {
		pdf.SetX(26)
		pdf.CellFormat(0, 7, tr("- "+f), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	heading("OBSERVAÇÕES", 15)
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 6, tr("Este é um relatório gerado automaticamente. A análise foi realizada "+
		"usando inteligência artificial e pode conter informações aproximadas."), "", "L", false)
	pdf.Ln(4)
	pdf.MultiCell(0, 6, tr("Para mais informações, entre em contato com nosso suporte."), "", "L", false)

	name := fmt.Sprintf("relatorio_%s_%d.pdf", in.AnalysisID, now.UnixMilli())
	path := filepath.Join(g.dir, name)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
