/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/*
	logbusd is a minimal standalone demonstration of the logbus runtime:
	a bus, a durable catalog, one file sink, and a startup span. Embedders
	will normally wire dlog.LogFabric directly into their own process
	rather than run this binary.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/launix-de/logbus/dlog"
)

var busRegistrationMagic = []byte("logbusd-bus-v1")

func main() {
	fmt.Print(`logbus Copyright (C) 2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	dataDir := flag.String("data", "./logbus-data", "directory holding the catalog, bus, and container files")
	maxFileSize := flag.String("max-file-size", "64MiB", "record container rotation threshold")
	regions := flag.Int("regions", 4, "number of bus regions")
	regionSize := flag.String("region-size", "4MiB", "size of each bus region")
	threshold := flag.String("threshold", "info", "minimum severity the demo sink accepts")
	flag.Parse()

	if err := run(*dataDir, *maxFileSize, *regionSize, *regions, *threshold); err != nil {
		fmt.Fprintln(os.Stderr, "logbusd:", err)
		os.Exit(1)
	}
}

func run(dataDir, maxFileSizeStr, regionSizeStr string, numRegions int, thresholdStr string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	maxFileSize, err := dlog.ParseFileSize(maxFileSizeStr)
	if err != nil {
		return fmt.Errorf("parsing -max-file-size: %w", err)
	}
	regionSize, err := dlog.ParseFileSize(regionSizeStr)
	if err != nil {
		return fmt.Errorf("parsing -region-size: %w", err)
	}
	threshold, err := parseSeverity(thresholdStr)
	if err != nil {
		return err
	}

	catalogPath := filepath.Join(dataDir, "catalog.db")
	db, err := dlog.OpenFileDatabase(catalogPath)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer db.Close()

	busFile, busEntry, err := db.CreateMessageBus(filepath.Join(dataDir, "bus-{id}.bin"), uuid.New(), busRegistrationMagic)
	if err != nil {
		return fmt.Errorf("registering bus with catalog: %w", err)
	}
	defer db.RemoveMessageBus(busEntry.ID)

	bus, err := dlog.InitBus(busFile, numRegions, uint32(regionSize))
	if err != nil {
		return fmt.Errorf("initializing bus: %w", err)
	}
	defer bus.Close()

	clock := dlog.DefaultClock()
	sinkBackend, err := dlog.NewFileSinkBackend(
		filepath.Join(dataDir, "container-{ctr}-{now}.log"),
		1,
		clock,
		dlog.WithCatalog(db, maxFileSize),
	)
	if err != nil {
		return fmt.Errorf("creating file sink: %w", err)
	}

	fabric := dlog.NewLogFabric(bus)
	sinkID := fabric.AttachSink(dlog.NewBasicSinkFrontend(threshold, sinkBackend))

	watcher, err := dlog.WatchCatalog(db, catalogPath)
	if err != nil {
		return fmt.Errorf("starting catalog watcher: %w", err)
	}
	defer watcher.Close()

	dlog.RegisterShutdown(fabric, db, &busEntry)

	err = fabric.WithSpan("logbusd.startup", dlog.SpanKindInternal, func(ctx dlog.SpanContext) {
		fabric.Info("logbus runtime started", dlog.NamedStringArg("data_dir", dataDir))
		fabric.Info("sink attached", dlog.NamedUintArg("sink_id", sinkID), dlog.NamedUintArg("max_file_size", maxFileSize))
	})
	if err != nil {
		return err
	}

	fabric.RetireLogRecords()
	return fabric.DestroySink(sinkID)
}

func parseSeverity(s string) (dlog.Severity, error) {
	switch s {
	case "trace":
		return dlog.SeverityTrace, nil
	case "debug":
		return dlog.SeverityDebug, nil
	case "info":
		return dlog.SeverityInfo, nil
	case "warn":
		return dlog.SeverityWarn, nil
	case "error":
		return dlog.SeverityError, nil
	case "fatal":
		return dlog.SeverityFatal, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}
