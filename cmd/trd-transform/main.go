// Command trd-transform calibrates hex-encoded Tracklet64 words into space
// points and writes them as CSV.
//
// Input is one 64-bit word per line (optional 0x prefix). Blank lines and
// lines starting with # are ignored.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trdcalib/internal/config"
	"github.com/banshee-data/trdcalib/internal/monitoring"
	"github.com/banshee-data/trdcalib/internal/trd"
	"github.com/banshee-data/trdcalib/internal/trd/calib"
	"github.com/banshee-data/trdcalib/internal/trd/geometry"
	"github.com/banshee-data/trdcalib/internal/trd/monitor"
	"github.com/banshee-data/trdcalib/internal/trd/parse"
	"github.com/banshee-data/trdcalib/internal/trd/storage/sqlite"
	"github.com/banshee-data/trdcalib/internal/trd/transform"
	"github.com/banshee-data/trdcalib/internal/version"
)

// plotSamples is the number of X samples in the timebin diagnostic plot.
const plotSamples = 200

type options struct {
	configPath   string
	inputPath    string
	outputPath   string
	dbPath       string
	calibRun     int64
	record       bool
	global       bool
	plotPath     string
	plotDetector int
}

var csvHeader = []string{"detector", "hcid", "padrow", "column", "x", "y", "z", "dy"}

func main() {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "path to transform config JSON (defaults used when empty)")
	flag.StringVar(&opts.inputPath, "input", "-", "file of hex Tracklet64 words, - for stdin")
	flag.StringVar(&opts.outputPath, "output", "-", "CSV output file, - for stdout")
	flag.StringVar(&opts.dbPath, "db", "", "path to sqlite calibration/run database")
	flag.Int64Var(&opts.calibRun, "calib-run", -1, "calibration run to load from -db (overrides config)")
	flag.BoolVar(&opts.record, "record", false, "store the transform run and its tracklets in -db")
	flag.BoolVar(&opts.global, "global", false, "write points in the global frame (implies tracking frame)")
	flag.StringVar(&opts.plotPath, "timebin-plot", "", "write a timebin(x) diagnostic plot to this PNG")
	flag.IntVar(&opts.plotDetector, "timebin-detector", trd.T0ReferenceChamber, "chamber for -timebin-plot")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String("trd-transform"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := io.Reader(os.Stdin)
	if opts.inputPath != "-" {
		f, err := os.Open(opts.inputPath)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	out := io.Writer(os.Stdout)
	if opts.outputPath != "-" {
		f, err := os.Create(opts.outputPath)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := run(ctx, opts, in, out); err != nil {
		log.Fatalf("trd-transform: %v", err)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	cfg := config.DefaultTransformConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadTransformConfig(opts.configPath); err != nil {
			return err
		}
	}
	monitoring.SetDebug(cfg.GetDebug())

	if opts.calibRun >= 0 {
		cfg.CalibrationRun = &opts.calibRun
	}
	if (cfg.HasCalibrationRun() || opts.record) && opts.dbPath == "" {
		return fmt.Errorf("-db is required to load a calibration run or record results")
	}

	var db *sqlite.DB
	if opts.dbPath != "" {
		var err error
		if db, err = sqlite.Open(opts.dbPath); err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
	}

	table, err := loadCalibration(cfg, db)
	if err != nil {
		return err
	}

	tracklets, err := readWords(in)
	if err != nil {
		return err
	}

	geo := geometry.New()
	tr := transform.NewTransformer(geo, table, table)
	tr.SetEncoding(cfg.GetEncoding())
	tr.SetT0ReferenceChamber(cfg.GetT0ReferenceDetector())
	if err := tr.Init(); err != nil {
		return err
	}

	trackingFrame := cfg.GetTrackingFrame() || opts.global
	results, err := tr.TransformBatch(ctx, tracklets, trackingFrame, cfg.GetWorkers())
	if err != nil {
		return err
	}

	if opts.global {
		for i, tl := range tracklets {
			p, err := tr.TrackingToGlobal(tl.Detector(), r3.Vec{X: results[i].X, Y: results[i].Y, Z: results[i].Z})
			if err != nil {
				return fmt.Errorf("tracklet %d: %w", i, err)
			}
			results[i].X, results[i].Y, results[i].Z = p.X, p.Y, p.Z
		}
	}

	if err := writeCSV(out, tracklets, results); err != nil {
		return err
	}
	log.Printf("transformed %d tracklets (encoding %s, tracking frame %t, global %t)",
		len(results), tr.Encoding(), trackingFrame, opts.global)

	if opts.record {
		source := opts.inputPath
		if source == "-" {
			source = "stdin"
		}
		runID, err := recordRun(db, cfg, tr, trackingFrame, source, tracklets, results)
		if err != nil {
			return err
		}
		log.Printf("recorded transform run %s", runID)
	}

	if opts.plotPath != "" {
		camHght := geo.CamHght()
		curve, err := monitor.SampleTimebin(tr, opts.plotDetector, camHght,
			-(geo.CdrHght() + camHght/2), camHght/2, plotSamples)
		if err != nil {
			return err
		}
		if err := curve.Save(opts.plotPath); err != nil {
			return err
		}
	}
	return nil
}

// loadCalibration snapshots the requested calibration run, or a uniform
// table of the configured defaults when no run is selected.
func loadCalibration(cfg *config.TransformConfig, db *sqlite.DB) (*calib.Table, error) {
	if !cfg.HasCalibrationRun() {
		return calib.NewUniformTable(cfg.GetDefaultVdrift(), cfg.GetDefaultExB(), cfg.GetDefaultT0()), nil
	}
	table, err := sqlite.NewCalibrationStore(db).LoadTable(cfg.GetCalibrationRun())
	if err != nil {
		return nil, fmt.Errorf("load calibration: %w", err)
	}
	vd, t0 := table.Len()
	log.Printf("loaded calibration run %d: %d chambers with vdrift/exb, %d with t0",
		cfg.GetCalibrationRun(), vd, t0)
	return table, nil
}

func readWords(r io.Reader) ([]trd.RawTracklet, error) {
	var tracklets []trd.RawTracklet
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		t, err := parse.ParseWordHex(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		tracklets = append(tracklets, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return tracklets, nil
}

func writeCSV(w io.Writer, tracklets []trd.RawTracklet, results []trd.CalibratedTracklet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i, ct := range results {
		t := tracklets[i]
		record := []string{
			strconv.Itoa(t.Detector()),
			strconv.Itoa(t.HCID),
			strconv.Itoa(t.PadRow),
			strconv.Itoa(t.Column),
			formatFloat(ct.X),
			formatFloat(ct.Y),
			formatFloat(ct.Z),
			formatFloat(ct.Dy),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func recordRun(db *sqlite.DB, cfg *config.TransformConfig, tr *transform.Transformer, trackingFrame bool,
	source string, tracklets []trd.RawTracklet, results []trd.CalibratedTracklet) (string, error) {
	store := sqlite.NewRunStore(db)
	run := &sqlite.TransformRun{
		CalibRun:      cfg.CalibrationRun,
		Encoding:      tr.Encoding().String(),
		TrackingFrame: trackingFrame,
		T0Chamber:     tr.T0ReferenceChamber(),
		Source:        source,
	}
	if err := store.InsertRun(run); err != nil {
		return "", err
	}

	records := make([]sqlite.TrackletRecord, len(results))
	for i := range results {
		records[i] = sqlite.NewTrackletRecord(i, tracklets[i], results[i])
	}
	if err := store.InsertTracklets(run.RunID, records); err != nil {
		return "", err
	}
	return run.RunID, nil
}
