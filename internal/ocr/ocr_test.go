package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xcalificator/grader/internal/metrics"
	"github.com/xcalificator/grader/internal/model"
)

func TestParseText(t *testing.T) {
	text := `Physics midterm
Name: Ana

1. What is the unit of force?
R: Newton
2) Name the law
that relates force and mass
Respuesta:  Second law
3.Which is heavier?
R/ neither
4. Direction of the force
→ downwards
5. Unanswered question`

	got := ParseText(text)
	want := []model.ParsedQuestion{
		{QuestionNumber: 1, Statement: "What is the unit of force?", AnswerText: "Newton"},
		{QuestionNumber: 2, Statement: "Name the law that relates force and mass", AnswerText: "Second law"},
		{QuestionNumber: 3, Statement: "Which is heavier?", AnswerText: "neither"},
		{QuestionNumber: 4, Statement: "Direction of the force", AnswerText: "downwards"},
		{QuestionNumber: 5, Statement: "Unanswered question"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseText:\n got %+v\nwant %+v", got, want)
	}
}

func TestParseTextEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"no numbered lines", "just a note\nR: stray answer", 0},
		{"windows line endings", "1. a\r\nR: b\r\n2. c\r\n", 2},
		{"number without separator", "12 apples\n1) real", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseText(tt.text); len(got) != tt.want {
				t.Errorf("got %d questions %+v, want %d", len(got), got, tt.want)
			}
		})
	}
}

// testImage draws dark text-like strokes on a light, unevenly lit page.
func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			light := uint8(160 + 80*x/w)
			img.Set(x, y, color.RGBA{light, light, light - 10, 255})
		}
	}
	for x := w / 4; x < 3*w/4; x++ {
		img.Set(x, h/2, color.Black)
		img.Set(x, h/2+1, color.Black)
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocess(t *testing.T) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, testImage(400, 100), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	out, err := Preprocess(jpg.Bytes(), 200)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 50 {
		t.Errorf("size = %dx%d, want 200x50", b.Dx(), b.Dy())
	}

	var black, white int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch v := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y; v {
			case 0:
				black++
			case 255:
				white++
			default:
				t.Fatalf("pixel (%d,%d) = %d, want binary output", x, y, v)
			}
		}
	}
	if black == 0 || white == 0 {
		t.Errorf("black=%d white=%d, want both", black, white)
	}
}

func TestPreprocessKeepsSmallImages(t *testing.T) {
	out, err := Preprocess(encodePNG(t, testImage(120, 80)), DefaultMaxImageDim)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 120 || cfg.Height != 80 {
		t.Errorf("size = %dx%d, want 120x80", cfg.Width, cfg.Height)
	}
}

func TestPreprocessRejectsNonImages(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("hello, not an image"), []byte("\x89PNG\r\n\x1a\ntruncated")} {
		if _, err := Preprocess(data, 0); !errors.Is(err, model.ErrUnsupportedUpload) {
			t.Errorf("Preprocess(%q) err = %v, want ErrUnsupportedUpload", data, err)
		}
	}
}

func TestHTTPRecognizer(t *testing.T) {
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ocr" {
			http.NotFound(w, r)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFile, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"1. Capital?\nR: Lima"}`)
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	r := NewHTTPRecognizer(srv.URL+"/", time.Second, m)
	text, err := r.Recognize(context.Background(), []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if text != "1. Capital?\nR: Lima" {
		t.Errorf("text = %q", text)
	}
	if string(gotFile) != "png-bytes" {
		t.Errorf("service received %q", gotFile)
	}
	if got := testutil.ToFloat64(m.OCRCalls(metrics.OutcomeOK)); got != 1 {
		t.Errorf("ok OCR calls = %v, want 1", got)
	}
}

func TestHTTPRecognizerFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}},
		{"bad body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>")
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			text, err := NewHTTPRecognizer(srv.URL, 50*time.Millisecond, nil).Recognize(context.Background(), []byte("x"))
			if !errors.Is(err, model.ErrOCRUnavailable) {
				t.Errorf("err = %v, want ErrOCRUnavailable", err)
			}
			if text != "" {
				t.Errorf("partial text %q returned", text)
			}
		})
	}
}

type fakeRecognizer struct {
	texts []string
	calls int
	err   error
}

func (f *fakeRecognizer) Recognize(_ context.Context, png []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text := f.texts[f.calls%len(f.texts)]
	f.calls++
	return text, nil
}

type fakeDocuments struct {
	texts []string
	pages []image.Image
}

func (f fakeDocuments) PageTexts([]byte) ([]string, error) { return f.texts, nil }

func (f fakeDocuments) RenderPages([]byte, float64) ([]image.Image, error) { return f.pages, nil }

var pdfData = []byte("%PDF-1.7\n...")

func TestPipelinePrintedPDF(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"unused"}}
	docs := fakeDocuments{texts: []string{"1. Capital of Peru\nR: Lima", "2. 2+2\nR: 4"}}
	p := NewPipeline(rec, docs, 0)

	ext, err := p.Process(context.Background(), model.UploadedFile{Filename: "exam.pdf", Data: pdfData})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ext.WritingType != model.WritingPrinted {
		t.Errorf("WritingType = %s, want printed", ext.WritingType)
	}
	if rec.calls != 0 {
		t.Errorf("recognizer called %d times for a text PDF", rec.calls)
	}
	if len(ext.Questions) != 2 || ext.Questions[1].AnswerText != "4" {
		t.Errorf("Questions = %+v", ext.Questions)
	}
	if ext.ProcessedImage != nil {
		t.Error("printed document should have no processed image")
	}
}

func TestPipelineScannedPDF(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"1. first\nR: a", "2. second\nR: b"}}
	docs := fakeDocuments{texts: []string{" \n", ""}, pages: []image.Image{testImage(60, 40), testImage(60, 40)}}
	p := NewPipeline(rec, docs, 0)

	ext, err := p.Process(context.Background(), model.UploadedFile{Filename: "scan.pdf", Data: pdfData})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ext.WritingType != model.WritingHandwritten {
		t.Errorf("WritingType = %s, want handwritten", ext.WritingType)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer called %d times, want once per page", rec.calls)
	}
	if ext.ExtractedText != "1. first\nR: a\n2. second\nR: b" {
		t.Errorf("ExtractedText = %q", ext.ExtractedText)
	}
	if len(ext.ProcessedImage) == 0 {
		t.Error("ProcessedImage not set")
	}
}

func TestPipelineImage(t *testing.T) {
	rec := &fakeRecognizer{texts: []string{"1) Verdadero o falso\nR: V"}}
	p := NewPipeline(rec, fakeDocuments{}, 0)

	ext, err := p.Process(context.Background(), model.UploadedFile{
		Filename: "photo.bin", ContentType: "application/octet-stream", Data: encodePNG(t, testImage(50, 50)),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ext.WritingType != model.WritingHandwritten || len(ext.Questions) != 1 || ext.Questions[0].AnswerText != "V" {
		t.Errorf("extraction = %+v", ext)
	}
}

func TestPipelineErrors(t *testing.T) {
	p := NewPipeline(&fakeRecognizer{err: model.ErrOCRUnavailable}, fakeDocuments{}, 0)

	_, err := p.Process(context.Background(), model.UploadedFile{Filename: "notes.txt", Data: []byte("1. a")})
	if !errors.Is(err, model.ErrUnsupportedUpload) {
		t.Errorf("text upload: err = %v, want ErrUnsupportedUpload", err)
	}

	_, err = p.Process(context.Background(), model.UploadedFile{Filename: "a.png", Data: encodePNG(t, testImage(20, 20))})
	if !errors.Is(err, model.ErrOCRUnavailable) {
		t.Errorf("recognizer down: err = %v, want ErrOCRUnavailable", err)
	}
}
