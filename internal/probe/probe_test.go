package probe

import "testing"

const sampleJSON = `{
  "format": {"duration": "8.012000"},
  "streams": [
    {"codec_type": "video", "width": 1920, "height": 1080, "disposition": {"attached_pic": 0}},
    {"codec_type": "audio", "sample_rate": "48000"}
  ]
}`

func TestParseJSON_FormatDuration(t *testing.T) {
	res, err := ParseJSON([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duration != 8.012 {
		t.Fatalf("duration: got %v, want 8.012", res.Duration)
	}
	if !res.HasVideo || !res.HasAudio {
		t.Fatalf("streams: got %+v", res)
	}
	if res.SampleRate != 48000 {
		t.Fatalf("sample rate: got %d, want 48000", res.SampleRate)
	}
	if res.Width != 1920 || res.Height != 1080 {
		t.Fatalf("dimensions: got %dx%d", res.Width, res.Height)
	}
}

func TestParseJSON_StreamDurationFallback(t *testing.T) {
	res, err := ParseJSON([]byte(`{
	  "format": {},
	  "streams": [{"codec_type": "video", "duration": "5.5"}]
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duration != 5.5 {
		t.Fatalf("duration: got %v, want 5.5", res.Duration)
	}
}

func TestParseJSON_AttachedPicIsNotVideo(t *testing.T) {
	res, err := ParseJSON([]byte(`{
	  "format": {"duration": "180.0"},
	  "streams": [
	    {"codec_type": "video", "disposition": {"attached_pic": 1}},
	    {"codec_type": "audio", "sample_rate": "44100"}
	  ]
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HasVideo {
		t.Fatal("cover art must not count as a video stream")
	}
	if !res.HasAudio {
		t.Fatal("audio stream missing")
	}
}

func TestParseJSON_Malformed(t *testing.T) {
	if _, err := ParseJSON([]byte("{not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
