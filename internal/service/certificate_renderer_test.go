package service

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCertificateData() *CertificateData {
	return &CertificateData{
		CertificateID:  "CM-1700000000000-AB12",
		StudentName:    "Ravi Kumar",
		CourseTitle:    "Go Basics",
		InstructorName: "Ada Lovelace",
		IssuerName:     "CourseMart Academy",
		Marks:          87.5,
		IssuedAt:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderProducesPNG(t *testing.T) {
	r := NewPNGCertificateRenderer()
	data, err := r.Render(sampleCertificateData())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1200, img.Bounds().Dx())
	assert.Equal(t, 850, img.Bounds().Dy())
}

func TestRenderIsDeterministic(t *testing.T) {
	r := NewPNGCertificateRenderer()
	a, err := r.Render(sampleCertificateData())
	require.NoError(t, err)
	b, err := r.Render(sampleCertificateData())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := sampleCertificateData()
	other.CertificateID = "CM-1700000000001-AB12"
	c, err := r.Render(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRenderHandlesLongText(t *testing.T) {
	d := sampleCertificateData()
	d.CourseTitle = strings.Repeat("Distributed Systems ", 20)
	d.StudentName = ""

	_, err := NewPNGCertificateRenderer().Render(d)
	assert.NoError(t, err)
}
