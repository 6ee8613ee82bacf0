package filtergraph

import "strconv"

// Encoder holds the output encoding settings.
type Encoder struct {
	VideoCodec   string `yaml:"video_codec"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
	SampleRate   int    `yaml:"sample_rate"`
}

// DefaultEncoder returns H.264/AAC settings suited to social platforms.
func DefaultEncoder() Encoder {
	return Encoder{
		VideoCodec:   "libx264",
		Preset:       "veryfast",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
		SampleRate:   44100,
	}
}

// buildArgs renders the ffmpeg argument vector for a validated graph.
func buildArgs(g *Graph, enc Encoder, fps int, output string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, in := range g.Inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}

	args = append(args,
		"-filter_complex", g.FilterComplex(),
		"-map", g.VideoOut.String(),
	)
	if g.AudioOut != "" {
		args = append(args, "-map", g.AudioOut.String())
	}

	args = append(args,
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", strconv.Itoa(enc.CRF),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
	)
	if g.AudioOut != "" {
		args = append(args,
			"-c:a", enc.AudioCodec,
			"-b:a", enc.AudioBitrate,
			"-ar", strconv.Itoa(enc.SampleRate),
		)
	} else {
		args = append(args, "-an")
	}

	return append(args,
		"-movflags", "+faststart",
		"-t", num(g.Total),
		output,
	)
}
