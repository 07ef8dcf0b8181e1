// Package main is the entry point for the tile server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/geotms/server/pkg/colormap"
)

var (
	version = "dev"
	commit  = "none"
)

var cli struct {
	Serve struct {
		Config string `default:"config/server.yaml" help:"Path to configuration file."`
	} `cmd:"" help:"Serve tiles from the configured catalogs over HTTP."`

	Ramps struct {
		Name  string `arg:"" optional:"" help:"Ramp to print. Lists ramp names when omitted."`
		Count int    `help:"Number of colors to interpolate; 0 prints the ramp's own stops."`
		Hex   bool   `help:"Print #rrggbbaa strings instead of packed integers."`
	} `cmd:"" help:"Print the colors of a named ramp."`

	Ingest struct {
		Catalog  string `arg:"" help:"Catalog URI, e.g. sqlite://tiles.db or file:///srv/tiles."`
		Layer    string `arg:"" help:"Layer name to write."`
		Dir      string `arg:"" help:"Directory of encoded tiles named {col}_{row}.tile." type:"existingdir"`
		Zoom     int    `required:"" help:"Zoom level of the input tiles."`
		CRS      string `default:"EPSG:3857" help:"CRS of the input tiles."`
		Pyramid  bool   `help:"Also write every coarser level down to --end-zoom."`
		EndZoom  int    `default:"0" help:"Coarsest level written with --pyramid."`
		Resample string `default:"nearest" help:"Resample method used with --pyramid."`
		Persist  string `default:"NONE" help:"Storage level hint recorded on the pyramid, e.g. MEMORY_AND_DISK."`
		CellType string `help:"Reject input tiles whose bands are not of this cell type, e.g. float64."`
	} `cmd:"" help:"Write encoded tiles, and optionally their pyramid, into a catalog."`

	Version struct{} `cmd:"" help:"Show the program version."`
}

func main() {
	if len(os.Args) < 2 {
		os.Args = append(os.Args, "--help")
	}

	kctx := kong.Parse(&cli)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd := kctx.Command(); {
	case cmd == "serve":
		if err := serve(ctx, cli.Serve.Config); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case strings.HasPrefix(cmd, "ramps"):
		if err := printRamp(cli.Ramps.Name, cli.Ramps.Count, cli.Ramps.Hex); err != nil {
			log.Fatalf("Failed to print ramp: %v", err)
		}
	case strings.HasPrefix(cmd, "ingest"):
		n, err := ingest(ctx, ingestOptions{
			Catalog:  cli.Ingest.Catalog,
			Layer:    cli.Ingest.Layer,
			Dir:      cli.Ingest.Dir,
			Zoom:     cli.Ingest.Zoom,
			CRS:      cli.Ingest.CRS,
			Pyramid:  cli.Ingest.Pyramid,
			EndZoom:  cli.Ingest.EndZoom,
			Resample: cli.Ingest.Resample,
		})
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", cli.Ingest.Dir, err)
		}
		log.Printf("Wrote %d tiles to %s#%s", n, cli.Ingest.Catalog, cli.Ingest.Layer)
	case cmd == "version":
		fmt.Printf("tms-server %s, commit %s\n", version, commit)
	default:
		panic(cmd)
	}
}

func printRamp(name string, n int, hex bool) error {
	if name == "" {
		for _, name := range colormap.Names() {
			fmt.Println(name)
		}
		return nil
	}
	if hex {
		colors, err := colormap.GetHex(name, n)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(colors, " "))
		return nil
	}
	packed, err := colormap.Get(name, n)
	if err != nil {
		return err
	}
	for i, p := range packed {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(p)
	}
	fmt.Println()
	return nil
}
