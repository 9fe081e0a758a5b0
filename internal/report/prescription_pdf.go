package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"github.com/yoockh/medscribe/internal/models"
)

var ErrNoFont = errors.New("no usable TTF font for PDF rendering")

// DefaultFontPaths are tried after the configured font; DejaVu covers accented French text.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// Prescription is a validated prescription ready to print.
type Prescription struct {
	ConsultationID string
	Patient        models.Patient
	Appointment    models.Appointment
	Diagnoses      []string
	Medications    []models.Medication
	Advice         []string
	ValidatedAt    time.Time
}

type Renderer interface {
	Render(p Prescription) ([]byte, error)
}

type PDFRenderer struct {
	FontPaths []string
}

func NewPDFRenderer(fontPath string) *PDFRenderer {
	paths := make([]string, 0, len(DefaultFontPaths)+1)
	if fontPath != "" {
		paths = append(paths, fontPath)
	}
	return &PDFRenderer{FontPaths: append(paths, DefaultFontPaths...)}
}

func (r *PDFRenderer) Render(p Prescription) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := r.loadFont(&pdf); err != nil {
		return nil, err
	}

	if err := pdf.SetFont("body", "", 18); err != nil {
		return nil, err
	}
	_ = pdf.Cell(nil, "Ordonnance")
	pdf.Br(28)

	if err := pdf.SetFont("body", "", 11); err != nil {
		return nil, err
	}
	for _, line := range Lines(p) {
		if line == "" {
			pdf.Br(8)
			continue
		}
		wrapped, err := pdf.SplitText(line, 500)
		if err != nil {
			wrapped = []string{line}
		}
		for _, w := range wrapped {
			if pdf.GetY() > 800 {
				pdf.AddPage()
			}
			_ = pdf.Cell(nil, w)
			pdf.Br(14)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) loadFont(pdf *gopdf.GoPdf) error {
	var last error
	for _, path := range r.FontPaths {
		if err := pdf.AddTTFFont("body", path); err != nil {
			last = err
			continue
		}
		return nil
	}
	if last == nil {
		return ErrNoFont
	}
	return fmt.Errorf("%w: %v", ErrNoFont, last)
}

// Lines is the printable body of a prescription, one entry per line; "" marks a gap.
func Lines(p Prescription) []string {
	lines := []string{
		fmt.Sprintf("Date : %s", p.ValidatedAt.Format("02/01/2006 15:04")),
		fmt.Sprintf("Médecin : %s (%s)", p.Appointment.Doctor, p.Appointment.DoctorSpecialty),
		fmt.Sprintf("Patient : %s %s, né(e) le %s", p.Patient.FirstName, p.Patient.LastName, p.Patient.DateOfBirth),
	}
	if len(p.Patient.Allergies) > 0 {
		lines = append(lines, "Allergies : "+strings.Join(p.Patient.Allergies, ", "))
	}
	if len(p.Diagnoses) > 0 {
		lines = append(lines, "Diagnostic : "+p.Diagnoses[0])
	}

	lines = append(lines, "", "Traitement :")
	if len(p.Medications) == 0 {
		lines = append(lines, "- Aucun médicament prescrit.")
	}
	for i, m := range p.Medications {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, medicationLine(m)))
	}

	if len(p.Advice) > 0 {
		lines = append(lines, "", "Conseils :")
		for _, a := range p.Advice {
			lines = append(lines, "- "+a)
		}
	}

	lines = append(lines, "", "Réf. consultation "+p.ConsultationID)
	return lines
}

func medicationLine(m models.Medication) string {
	parts := []string{m.Name}
	for _, v := range []string{m.Dosage, m.Frequency, m.Duration} {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " - ")
}
