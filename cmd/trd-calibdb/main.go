// Command trd-calibdb manages chamber calibration runs in the sqlite
// database read by trd-transform.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/trdcalib/internal/trd/storage/sqlite"
	"github.com/banshee-data/trdcalib/internal/version"
)

var importHeader = []string{"detector", "vdrift", "exb", "t0"}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "import":
		err = handleImport(args, os.Stdout)
	case "list":
		err = handleList(args, os.Stdout)
	case "delete":
		err = handleDelete(args, os.Stdout)
	case "version":
		fmt.Println(version.String("trd-calibdb"))
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`trd-calibdb - TRD chamber calibration database

Usage: trd-calibdb <command> [options]

Commands:
  import     Import a calibration CSV (detector,vdrift,exb,t0) as a run
  list       List stored calibration runs
  delete     Delete a calibration run
  version    Show version
  help       Show this help message

Examples:
  trd-calibdb import --db trd.db --run 500123 --desc "cosmics" calib.csv
  trd-calibdb list --db trd.db --json`)
}

func handleImport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dbPath := fs.String("db", "trd.db", "Path to sqlite database")
	run := fs.Int64("run", -1, "Calibration run number (required)")
	desc := fs.String("desc", "", "Run description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *run < 0 {
		return errors.New("--run is required")
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one CSV file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	chambers, err := readCalibrationCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlite.NewCalibrationStore(db).PutRun(*run, *desc, chambers); err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d chambers into run %d\n", len(chambers), *run)
	return nil
}

// readCalibrationCSV reads detector,vdrift,exb,t0 rows. Empty cells leave
// that constant unset for the chamber.
func readCalibrationCSV(r io.Reader) ([]sqlite.ChamberCalibration, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("empty calibration file")
	}
	if got := strings.Join(records[0], ","); got != strings.Join(importHeader, ",") {
		return nil, fmt.Errorf("unexpected header %q, want %q", got, strings.Join(importHeader, ","))
	}

	chambers := make([]sqlite.ChamberCalibration, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := i + 1
		det, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid detector %q", row, rec[0])
		}
		c := sqlite.ChamberCalibration{Detector: det}
		for j, dst := range []**float64{&c.Vdrift, &c.ExB, &c.T0} {
			cell := rec[j+1]
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid %s %q", row, importHeader[j+1], cell)
			}
			*dst = &v
		}
		if (c.Vdrift == nil) != (c.ExB == nil) {
			return nil, fmt.Errorf("row %d: vdrift and exb must be given together", row)
		}
		chambers = append(chambers, c)
	}
	return chambers, nil
}

func handleList(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dbPath := fs.String("db", "trd.db", "Path to sqlite database")
	asJSON := fs.Bool("json", false, "Print runs as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := sqlite.NewCalibrationStore(db).Runs()
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCHAMBERS\tCREATED\tDESCRIPTION")
	for _, r := range runs {
		created := time.Unix(0, r.CreatedAtNs).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", r.RunNumber, r.Chambers, created, r.Description)
	}
	return tw.Flush()
}

func handleDelete(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	dbPath := fs.String("db", "trd.db", "Path to sqlite database")
	run := fs.Int64("run", -1, "Calibration run number (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *run < 0 {
		return errors.New("--run is required")
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlite.NewCalibrationStore(db).DeleteRun(*run); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted run %d\n", *run)
	return nil
}
