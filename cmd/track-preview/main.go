// 命令 track-preview：离线打印某标识某日的合成轨迹，不消费配额、不访问存储
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"imei-sim/internal/day"
	"imei-sim/internal/imei"
	"imei-sim/internal/logger"
	"imei-sim/internal/seed"
	"imei-sim/internal/track"
)

type previewConfig struct {
	IMEI   string
	Day    string
	Secret string
	Labels string
	JSON   bool
}

func parseConfig(fs *flag.FlagSet, args []string) (previewConfig, error) {
	var c previewConfig
	fs.StringVar(&c.IMEI, "imei", "", "15-digit identifier")
	fs.StringVar(&c.Day, "day", "", "UTC day YYYY-MM-DD (default today)")
	fs.StringVar(&c.Labels, "labels", os.Getenv("LABELS_FILE"), "optional YAML label file")
	fs.BoolVar(&c.JSON, "json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	c.Secret = os.Getenv("SECRET_KEY")
	if c.IMEI == "" {
		return c, errors.New("-imei is required")
	}
	if c.Secret == "" {
		return c, errors.New("SECRET_KEY is not set")
	}
	return c, nil
}

func run(c previewConfig, out io.Writer, now func() time.Time) error {
	id, err := imei.Validate(c.IMEI)
	if err != nil {
		return err
	}
	d := day.Of(now())
	if c.Day != "" {
		if d, err = day.Parse(c.Day); err != nil {
			return err
		}
	}
	dv, err := seed.New([]byte(c.Secret))
	if err != nil {
		return err
	}
	var opts track.Options
	if c.Labels != "" {
		if opts.Labels, err = track.LoadLabels(c.Labels); err != nil {
			return err
		}
	}
	t := track.NewSynthesizer(opts).Build(id, d, dv.Derive(id, d))
	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	fmt.Fprintf(out, "%s  %s  base %.5f,%.5f\n", t.Prefix, t.Day, t.Base.Lat, t.Base.Lon)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tLAT\tLON\tLABEL")
	for _, p := range t.Points {
		fmt.Fprintf(tw, "%d\t%s\t%.5f\t%.5f\t%s\n", p.Seq, p.Time.Format("15:04:05"), p.Coord.Lat, p.Coord.Lon, p.Label)
	}
	return tw.Flush()
}

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	c, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		l.Error("preview_config_error", "err", err)
		os.Exit(2)
	}
	if err := run(c, os.Stdout, time.Now); err != nil {
		l.Error("preview_error", "imei", c.IMEI, "err", err)
		os.Exit(1)
	}
}
