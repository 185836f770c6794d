package preview

import (
	"fmt"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"meshstab/internal/pipeline"
)

const (
	MinPaneWidth  = 480
	MinPaneHeight = 270
)

// Viewer shows each original frame next to its stabilized version. It is a
// pipeline.FrameObserver and may be fed from any goroutine.
type Viewer struct {
	container  *fyne.Container
	original   *canvas.Image
	stabilized *canvas.Image
	status     *widget.Label
}

func NewViewer() *Viewer {
	original := canvas.NewImageFromImage(nil)
	original.FillMode = canvas.ImageFillContain
	original.SetMinSize(fyne.NewSize(MinPaneWidth, MinPaneHeight))

	stabilized := canvas.NewImageFromImage(nil)
	stabilized.FillMode = canvas.ImageFillContain
	stabilized.SetMinSize(fyne.NewSize(MinPaneWidth, MinPaneHeight))

	panes := container.New(layout.NewGridLayoutWithColumns(2),
		container.NewBorder(widget.NewRichTextFromMarkdown("**Original**"), nil, nil, nil, original),
		container.NewBorder(widget.NewRichTextFromMarkdown("**Stabilized**"), nil, nil, nil, stabilized),
	)

	status := widget.NewLabel("waiting for frames")

	return &Viewer{
		container:  container.NewBorder(nil, status, nil, nil, panes),
		original:   original,
		stabilized: stabilized,
		status:     status,
	}
}

func (v *Viewer) Container() *fyne.Container {
	return v.container
}

// ObserveFrame converts both frames before handing them to the UI thread,
// since the Mats are only valid during the call.
func (v *Viewer) ObserveFrame(r pipeline.FrameResult) error {
	orig, err := r.Original.ToImage()
	if err != nil {
		return fmt.Errorf("original frame %d: %w", r.Index, err)
	}
	stab, err := r.Stabilized.ToImage()
	if err != nil {
		return fmt.Errorf("stabilized frame %d: %w", r.Index, err)
	}

	text := Status(r)
	fyne.Do(func() {
		v.show(orig, stab, text)
	})
	return nil
}

// SetStatus replaces the status line; safe from any goroutine.
func (v *Viewer) SetStatus(text string) {
	fyne.Do(func() {
		v.status.SetText(text)
	})
}

func (v *Viewer) show(orig, stab image.Image, text string) {
	v.original.Image = orig
	v.original.Refresh()
	v.stabilized.Image = stab
	v.stabilized.Refresh()
	v.status.SetText(text)
}

// Status renders the one-line summary shown under the frames.
func Status(r pipeline.FrameResult) string {
	text := fmt.Sprintf("frame %d  max motion %.2f px  max correction %.2f px",
		r.Index, r.Motion.MaxMagnitude(), r.Correction.MaxMagnitude())
	switch {
	case r.Fallback:
		text += "  (unwarped)"
	case r.Degenerate:
		text += "  (no motion estimate)"
	}
	return text
}
