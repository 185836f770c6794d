package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"

	"meshstab/internal/app"
	"meshstab/internal/config"
	"meshstab/internal/pipeline"
	"meshstab/internal/preview"
)

const (
	windowWidth  = 1000
	windowHeight = 360
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	input := flag.String("i", "", "input video")
	output := flag.String("o", "", "optional output directory or file")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: meshstab-preview [-config file.yaml] -i input.mp4 [-o output]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}

	viewer := preview.NewViewer()
	a.Stabilizer().AddFrameObserver(viewer)

	fa := fyneapp.NewWithID(app.AppID)
	window := fa.NewWindow("meshstab preview")
	window.SetContent(viewer.Container())
	window.Resize(fyne.NewSize(windowWidth, windowHeight))
	window.CenterOnScreen()
	window.SetOnClosed(func() {
		a.Close()
	})

	go stream(a, viewer, *input, *output)

	window.ShowAndRun()
}

// stream runs the causal pass so frames appear as soon as they are rendered.
func stream(a *app.Application, viewer *preview.Viewer, input, output string) {
	src, err := a.OpenSource(input)
	if err != nil {
		viewer.SetStatus(err.Error())
		return
	}

	var sink pipeline.FrameSink = app.Discard{}
	if output != "" {
		w, h := src.Size()
		if sink, err = a.OpenSink(output, src.FPS(), w, h); err != nil {
			viewer.SetStatus(err.Error())
			return
		}
	}

	stats, err := a.Stabilizer().Stream(a.Context(), src, sink)
	if err != nil {
		a.Logger().Error("Preview", err, nil)
		viewer.SetStatus(fmt.Sprintf("stopped after %d frames: %v", stats.Frames, err))
		return
	}
	viewer.SetStatus(fmt.Sprintf("done: %d frames, %d degenerate, %d unwarped",
		stats.Frames, stats.Degenerate, stats.FrameFallbacks))
}
