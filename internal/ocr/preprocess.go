package ocr

import (
	"bytes"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/xcalificator/grader/internal/model"
)

// DefaultMaxImageDim bounds the longest side of an image sent to recognition.
const DefaultMaxImageDim = 2048

const (
	denoiseSigma   = 0.8
	thresholdSigma = 2.0 // Gaussian weights of an 11 px neighbourhood
	thresholdC     = 2
)

// Preprocess prepares an image for text recognition: it is downscaled to
// maxDim, converted to grayscale, lightly denoised and binarized with an
// adaptive Gaussian threshold. The result is PNG encoded.
func Preprocess(data []byte, maxDim int) ([]byte, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return preprocessImage(img, maxDim)
}

func preprocessImage(img image.Image, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxImageDim
	}
	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Box)
	}

	gray := imaging.Blur(imaging.Grayscale(img), denoiseSigma)
	binary := adaptiveThreshold(gray)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, binary, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}

// adaptiveThreshold turns a pixel white when it is brighter than its
// Gaussian-weighted neighbourhood mean minus thresholdC, black otherwise.
func adaptiveThreshold(gray *image.NRGBA) *image.Gray {
	mean := imaging.Blur(gray, thresholdSigma)
	b := gray.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// Grayscale NRGBA: R == G == B.
			v := int(gray.Pix[y*gray.Stride+x*4])
			m := int(mean.Pix[y*mean.Stride+x*4])
			if v > m-thresholdC {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// decodeImage decodes JPEG, PNG and WebP data, sniffing the format from
// the content.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", model.ErrUnsupportedUpload)
	}
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return nil, fmt.Errorf("%w: content type %s", model.ErrUnsupportedUpload, ct)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %w", model.ErrUnsupportedUpload, err)
	}
	return img, nil
}
