package scenecut_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"testing"

	"vidstyle/internal/frames"
	"vidstyle/internal/logging"
	"vidstyle/internal/scenecut"
)

func writeSolidFrame(t *testing.T, dir string, index int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := frames.WriteFrame(dir, index, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
}

func TestHistogramDetectorFindsColorCut(t *testing.T) {
	dir := t.TempDir()
	red := color.RGBA{R: 200, G: 20, B: 20, A: 255}
	blue := color.RGBA{R: 20, G: 20, B: 200, A: 255}
	for i := 0; i < 5; i++ {
		writeSolidFrame(t, dir, i, red)
	}
	for i := 5; i < 10; i++ {
		writeSolidFrame(t, dir, i, blue)
	}

	store, err := frames.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	detector := scenecut.NewHistogramDetector(0.8, 50, logging.NewNop())
	cuts, err := detector.Detect(context.Background(), store)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !reflect.DeepEqual(cuts, []int{5}) {
		t.Fatalf("cuts = %v, want [5]", cuts)
	}
}

func TestHistogramDetectorStableSequence(t *testing.T) {
	dir := t.TempDir()
	green := color.RGBA{R: 30, G: 180, B: 40, A: 255}
	for i := 0; i < 6; i++ {
		writeSolidFrame(t, dir, i, green)
	}

	store, err := frames.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	detector := scenecut.NewHistogramDetector(0.8, 50, logging.NewNop())
	cuts, err := detector.Detect(context.Background(), store)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(cuts) != 0 {
		t.Fatalf("cuts = %v, want none", cuts)
	}
}

func TestMergeCuts(t *testing.T) {
	tests := []struct {
		name     string
		detected []int
		manual   []int
		window   int
		want     []int
	}{
		{"no manual", []int{10, 50}, nil, 2, []int{10, 50}},
		{"manual wins nearby", []int{10, 50}, []int{11}, 2, []int{11, 50}},
		{"manual adds", []int{10}, []int{90}, 2, []int{10, 90}},
		{"dedupes and drops zero", []int{10, 10}, []int{0, 10}, 0, []int{10}},
		{"empty", nil, nil, 2, []int{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := scenecut.MergeCuts(tc.detected, tc.manual, tc.window)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("MergeCuts = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildScenesStartsAtZero(t *testing.T) {
	scenes := scenecut.BuildScenes([]int{40, 120})
	if len(scenes) != 3 {
		t.Fatalf("len(scenes) = %d, want 3", len(scenes))
	}
	if scenes[0].StartFrame != 0 || scenes[0].Name != "scene000" {
		t.Fatalf("unexpected first scene: %+v", scenes[0])
	}
	if scenes[2].StartFrame != 120 {
		t.Fatalf("unexpected last scene: %+v", scenes[2])
	}
	for _, scene := range scenes {
		if scene.Prompt != "" {
			t.Fatalf("prompts should start empty, got %+v", scene)
		}
	}
}
