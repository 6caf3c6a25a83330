package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mrjoshuak/go-sortlast/comm/amqpcomm"
	"github.com/mrjoshuak/go-sortlast/composite"
	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/frame"
)

const (
	transportLocal = "local"
	transportAMQP  = "amqp"
)

// settings is the validated command configuration.
type settings struct {
	Ranks     int
	Strategy  composite.Strategy
	Config    composite.Config
	Patches   int
	Seed      uint64
	Output    string
	Transport string
	AMQP      *amqpcomm.Config
	Timeout   time.Duration
}

func loadSettings(v *viper.Viper) (*settings, error) {
	s := &settings{
		Ranks:     v.GetInt("ranks"),
		Patches:   v.GetInt("patches"),
		Seed:      v.GetUint64("seed"),
		Output:    v.GetString("output"),
		Transport: strings.ToLower(v.GetString("transport")),
		Timeout:   v.GetDuration("timeout"),
	}
	if s.Ranks <= 0 {
		return nil, fmt.Errorf("ranks must be positive, got %d", s.Ranks)
	}
	if s.Patches < 0 {
		return nil, fmt.Errorf("patches must not be negative, got %d", s.Patches)
	}
	if s.Output == "" {
		return nil, fmt.Errorf("no output file")
	}
	if err := checkOutputExt(s.Output); err != nil {
		return nil, err
	}
	if s.Timeout <= 0 {
		s.Timeout = 2 * time.Minute
	}

	var err error
	if s.Strategy, err = composite.ParseStrategy(v.GetString("strategy")); err != nil {
		return nil, err
	}

	cfg := composite.DefaultConfig(v.GetInt("width"), v.GetInt("height"))
	cfg.Root = v.GetInt("root")
	cfg.Broadcast = v.GetBool("broadcast")
	cfg.HalfPixels = v.GetBool("half")
	cfg.MemoryLimit = v.GetInt64("memory-limit")
	cfg.Parallel.NumWorkers = v.GetInt("workers")
	if cfg.Direction, err = composite.ParseDirection(v.GetString("direction")); err != nil {
		return nil, err
	}
	if cfg.Format, err = frame.ParsePixelFormat(v.GetString("format")); err != nil {
		return nil, err
	}
	if cfg.Codec, err = compression.ParseCodec(v.GetString("codec")); err != nil {
		return nil, err
	}
	if bg := v.GetString("background"); bg != "" {
		c, err := parseColor(bg)
		if err != nil {
			return nil, err
		}
		cfg.Background = &c
	}
	if err := cfg.Validate(s.Ranks); err != nil {
		return nil, err
	}
	s.Config = cfg

	switch s.Transport {
	case transportLocal:
	case transportAMQP:
		ac := amqpcomm.DefaultConfig(v.GetInt("rank"), s.Ranks)
		ac.URL = v.GetString("amqp-url")
		ac.QueuePrefix = v.GetString("queue-prefix")
		s.AMQP = ac
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s or %s)", s.Transport, transportLocal, transportAMQP)
	}
	return s, nil
}

// parseColor reads "r,g,b" with components in [0, 1].
func parseColor(s string) (frame.Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return frame.Color{}, fmt.Errorf("background %q: want r,g,b", s)
	}
	var v [3]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil || f < 0 || f > 1 {
			return frame.Color{}, fmt.Errorf("background %q: component %q not in [0,1]", s, p)
		}
		v[i] = float32(f)
	}
	return frame.Color{R: v[0], G: v[1], B: v[2]}, nil
}

// describe summarizes how the frame was composited.
func (s *settings) describe() string {
	return fmt.Sprintf("sortlast %s: %d ranks, %v, codec %v, %d patches per rank, seed %d",
		s.Strategy, s.Ranks, s.Config.Direction, s.Config.Codec, s.Patches, s.Seed)
}
