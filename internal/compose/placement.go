package compose

import (
	"math"

	"github.com/lehigh-university-libraries/setlist/internal/images"
)

// Placement is the rectangle an image occupies on a page, in page units
type Placement struct {
	X float64
	Y float64
	W float64
	H float64
}

// Page is one sheet of the output document
type Page struct {
	Image     *images.Image
	Placement Placement
}

// Fit scales an image to fit entirely inside the page, preserving its aspect
// ratio, and centers it. A relatively wider image is bound by the page width,
// anything else by the page height.
func Fit(imgWidth, imgHeight, pageWidth, pageHeight float64) Placement {
	if imgWidth <= 0 || imgHeight <= 0 || pageWidth <= 0 || pageHeight <= 0 {
		return Placement{}
	}

	imgRatio := imgWidth / imgHeight
	pageRatio := pageWidth / pageHeight

	var w, h float64
	if imgRatio > pageRatio {
		w = pageWidth
		h = w / imgRatio
	} else {
		h = pageHeight
		w = h * imgRatio
	}

	// Equal ratios can round a hair past the edge
	w = math.Min(w, pageWidth)
	h = math.Min(h, pageHeight)

	return Placement{
		X: (pageWidth - w) / 2,
		Y: (pageHeight - h) / 2,
		W: w,
		H: h,
	}
}

// ComposePage places img on a page of the given size
func ComposePage(img *images.Image, size PageSize) Page {
	return Page{
		Image:     img,
		Placement: Fit(float64(img.Width), float64(img.Height), size.Width, size.Height),
	}
}
