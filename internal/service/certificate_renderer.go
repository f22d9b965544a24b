package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"time"

	"coursemart_backend/internal/util"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CertificateData 证书上展示的内容
type CertificateData struct {
	CertificateID  string
	StudentName    string
	CourseTitle    string
	InstructorName string
	IssuerName     string
	Marks          float64
	IssuedAt       time.Time
}

type CertificateRenderer interface {
	Render(d *CertificateData) ([]byte, error)
}

var (
	paperColor  = color.NRGBA{R: 255, G: 252, B: 240, A: 255}
	borderColor = color.NRGBA{R: 24, G: 45, B: 90, A: 255}
	inkColor    = color.NRGBA{R: 30, G: 30, B: 30, A: 255}
	accentColor = color.NRGBA{R: 150, G: 110, B: 20, A: 255}
)

// PNGCertificateRenderer 固定版式的 PNG 证书
type PNGCertificateRenderer struct {
	Width  int
	Height int
}

func NewPNGCertificateRenderer() *PNGCertificateRenderer {
	return &PNGCertificateRenderer{Width: 1200, Height: 850}
}

type textLine struct {
	text  string
	scale int
	y     int
	color color.NRGBA
}

func (r *PNGCertificateRenderer) Render(d *CertificateData) ([]byte, error) {
	canvas := imaging.New(r.Width, r.Height, paperColor)
	canvas = imaging.Paste(canvas, imaging.New(r.Width-40, r.Height-40, borderColor), image.Pt(20, 20))
	canvas = imaging.Paste(canvas, imaging.New(r.Width-60, r.Height-60, paperColor), image.Pt(30, 30))

	lines := []textLine{
		{d.IssuerName, 3, 80, borderColor},
		{"CERTIFICATE OF COMPLETION", 4, 180, accentColor},
		{"This certifies that", 2, 300, inkColor},
		{d.StudentName, 5, 360, borderColor},
		{"has successfully completed", 2, 470, inkColor},
		{d.CourseTitle, 4, 530, borderColor},
		{fmt.Sprintf("Score %.2f%%   Instructor %s", d.Marks, d.InstructorName), 2, 650, inkColor},
		{fmt.Sprintf("Issued %s   Certificate %s", d.IssuedAt.Format(util.DateFormat), d.CertificateID), 2, 730, inkColor},
	}
	for _, l := range lines {
		canvas = r.drawCentered(canvas, l)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode certificate: %w", err)
	}
	return buf.Bytes(), nil
}

// drawCentered 用点阵字体绘制后放大，水平居中；过长的文本先缩小倍数再截断
func (r *PNGCertificateRenderer) drawCentered(canvas *image.NRGBA, l textLine) *image.NRGBA {
	face := basicfont.Face7x13
	maxWidth := r.Width - 100
	text := []rune(l.text)
	if len(text) == 0 {
		return canvas
	}

	scale := l.scale
	width := font.MeasureString(face, string(text)).Ceil()
	for scale > 1 && width*scale > maxWidth {
		scale--
	}
	for len(text) > 1 && width*scale > maxWidth {
		text = text[:len(text)-1]
		width = font.MeasureString(face, string(text)).Ceil()
	}

	glyphs := image.NewNRGBA(image.Rect(0, 0, width, face.Height))
	drawer := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(l.color),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	drawer.DrawString(string(text))

	scaled := imaging.Resize(glyphs, width*scale, face.Height*scale, imaging.NearestNeighbor)
	x := (r.Width - scaled.Bounds().Dx()) / 2
	return imaging.Overlay(canvas, scaled, image.Pt(x, l.y), 1.0)
}
