package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

// Config holds the plotting tool configuration.
type Config struct {
	DBPath        string
	RunID         int64
	OutputFile    string
	Format        ImageFormat
	FontPath      string
	UsPerPixel    float64
	NoAnnotations bool
	Verbose       bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:     ImagePNG,
		UsPerPixel: 50,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat string
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.Int64Var(&c.RunID, "run", 1, "Run ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&c.FontPath, "font", "/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf",
		"TrueType font used for lane labels")
	flag.Float64Var(&c.UsPerPixel, "us-per-px", 50, "Horizontal scale in microseconds per pixel")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable lane labels")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.RunID <= 0 {
		err = errors.New("run id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.UsPerPixel <= 0 {
		err = errors.New("us-per-px must be positive")
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
