package ffmpeg

import (
	"strings"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"25/1", 25, false},
		{"30000/1001", 29.97002997002997, false},
		{"24", 24, false},
		{"23.976", 23.976, false},
		{"", 0, true},
		{"abc", 0, true},
		{"30/0", 0, true},
	}
	for _, tc := range tests {
		got, err := parseFrameRate(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseFrameRate(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFrameRate(%q) failed: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestBuildRenderArgsPresets(t *testing.T) {
	tests := []struct {
		name    string
		opts    RenderOptions
		expect  []string
		absent  []string
		wantErr bool
	}{
		{
			name:   "good default",
			opts:   RenderOptions{FPS: 24},
			expect: []string{"-crf 18", "-preset medium", "-pix_fmt yuv420p", "-framerate 24"},
			absent: []string{"-c:a"},
		},
		{
			name:   "small with audio",
			opts:   RenderOptions{Quality: QualitySmall, FPS: 30, AudioPath: "audio.wav"},
			expect: []string{"-crf 28", "-preset veryfast", "-i audio.wav", "-b:a 192k"},
		},
		{
			name:   "uncompressed",
			opts:   RenderOptions{Quality: QualityUncompressed, FPS: 24},
			expect: []string{"-crf 0", "-pix_fmt yuv444p"},
			absent: []string{"-c:a"},
		},
		{
			name:   "sharpness filter",
			opts:   RenderOptions{Quality: QualityGood, FPS: 24, Sharpness: 1.5},
			expect: []string{"-vf unsharp=5:5:1.5:5:5:1.5"},
		},
		{
			name:    "unknown preset",
			opts:    RenderOptions{Quality: "huge", FPS: 24},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args, err := buildRenderArgs("frames", "out.mp4", tc.opts)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildRenderArgs failed: %v", err)
			}
			joined := strings.Join(args, " ")
			for _, want := range tc.expect {
				if !strings.Contains(joined, want) {
					t.Errorf("args missing %q: %s", want, joined)
				}
			}
			for _, absent := range tc.absent {
				if strings.Contains(joined, absent) {
					t.Errorf("args should not contain %q: %s", absent, joined)
				}
			}
			if args[len(args)-1] != "out.mp4" {
				t.Errorf("output should be last arg: %s", joined)
			}
			if !strings.Contains(joined, "frame_%05d.png") {
				t.Errorf("frame pattern missing: %s", joined)
			}
		})
	}
}
