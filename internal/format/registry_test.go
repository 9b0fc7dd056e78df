package format

import (
	"testing"
)

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		value string
		want  Category
		ok    bool
	}{
		{"png", CategoryImage, true},
		{".JPG", CategoryImage, true},
		{"mp3", CategoryAudio, true},
		{"MKV", CategoryVideo, true},
		{"docx", CategoryDocument, true},
		{"pptx", CategoryPresentation, true},
		{"exe", "", false},
	}
	for _, tc := range cases {
		got, ok := CategoryOf(tc.value)
		if ok != tc.ok || got != tc.want {
			t.Errorf("CategoryOf(%q) = %q, %v; want %q, %v", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTargetsForImageIncludesPDF(t *testing.T) {
	targets := TargetsFor("png")
	wantSome := []string{"jpg", "gif", "pdf", "webp"}
	for _, want := range wantSome {
		if !contains(targets, want) {
			t.Errorf("expected png targets to include %q, got %v", want, targets)
		}
	}
	if contains(targets, "png") {
		t.Errorf("png should not convert to itself: %v", targets)
	}
}

func TestTargetsForPDFIncludesImages(t *testing.T) {
	targets := TargetsFor("pdf")
	for _, want := range []string{"jpg", "png", "webp", "docx", "txt"} {
		if !contains(targets, want) {
			t.Errorf("expected pdf targets to include %q, got %v", want, targets)
		}
	}
}

func TestTargetsForVideoIncludesAudioAndGIF(t *testing.T) {
	targets := TargetsFor("mkv")
	for _, want := range []string{"mp4", "mp3", "wav", "aac", "gif"} {
		if !contains(targets, want) {
			t.Errorf("expected mkv targets to include %q, got %v", want, targets)
		}
	}
}

func TestSupportsExtendedFormats(t *testing.T) {
	cases := []struct {
		value string
		want  Category
	}{
		{"tiff", CategoryImage},
		{"ogg", CategoryAudio},
		{"flac", CategoryAudio},
		{"m4a", CategoryAudio},
		{"webm", CategoryVideo},
		{"doc", CategoryDocument},
		{"csv", CategoryDocument},
		{"html", CategoryDocument},
		{"md", CategoryDocument},
	}
	for _, tc := range cases {
		if !IsSupported(tc.value) {
			t.Errorf("expected %q to be a supported input format", tc.value)
		}
		got, ok := CategoryOf(tc.value)
		if !ok || got != tc.want {
			t.Errorf("CategoryOf(%q) = %q, %v; want %q, true", tc.value, got, ok, tc.want)
		}
	}
}

func TestTargetsForExtendedFormats(t *testing.T) {
	cases := []struct {
		source string
		want   []string
	}{
		{"flac", []string{"mp3", "wav", "aac", "ogg", "m4a"}},
		{"mp3", []string{"ogg", "flac", "m4a"}},
		{"tiff", []string{"png", "jpg", "pdf"}},
		{"webm", []string{"mp4", "mkv", "mp3", "flac", "gif"}},
		{"mkv", []string{"webm", "ogg", "m4a"}},
		{"doc", []string{"pdf", "docx", "txt"}},
		{"csv", []string{"pdf", "xlsx"}},
		{"xlsx", []string{"pdf", "csv"}},
		{"html", []string{"pdf", "txt"}},
		{"md", []string{"pdf", "txt"}},
	}
	for _, tc := range cases {
		targets := TargetsFor(tc.source)
		for _, want := range tc.want {
			if !contains(targets, want) {
				t.Errorf("expected %s targets to include %q, got %v", tc.source, want, targets)
			}
		}
		if contains(targets, tc.source) {
			t.Errorf("%s should not convert to itself: %v", tc.source, targets)
		}
	}
}

func TestTargetsForUnknownFormat(t *testing.T) {
	if targets := TargetsFor("exe"); targets != nil {
		t.Fatalf("expected nil targets for unknown format, got %v", targets)
	}
}

func TestCanConvert(t *testing.T) {
	cases := []struct {
		source, target string
		want           bool
	}{
		{"png", "jpg", true},
		{"png", "pdf", true},
		{"pdf", "png", true},
		{"mp4", "gif", true},
		{"mp4", "mp3", true},
		{"mp3", "gif", false},
		{"pptx", "pdf", true},
		{"pptx", "docx", false},
		{"exe", "pdf", false},
	}
	for _, tc := range cases {
		if got := CanConvert(tc.source, tc.target); got != tc.want {
			t.Errorf("CanConvert(%q, %q) = %v, want %v", tc.source, tc.target, got, tc.want)
		}
	}
}

func TestMatrixCoversAllFormats(t *testing.T) {
	matrix := Matrix()
	for _, category := range AllCategories() {
		for _, f := range Formats(category) {
			if len(matrix[f]) == 0 {
				t.Errorf("expected matrix entry for %q", f)
			}
		}
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
