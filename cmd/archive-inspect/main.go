package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/theimaginaryfoundation/world-weaver/savearchive"
	"github.com/theimaginaryfoundation/world-weaver/weave"
	"github.com/theimaginaryfoundation/world-weaver/weave/fileutils"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	arch, err := savearchive.Open(cfg.SavePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer arch.Close()

	switch {
	case cfg.DumpJSON:
		err = dumpJSON(os.Stdout, arch)
	case cfg.ImageID >= 0:
		err = extractImage(arch, cfg.ImageID, cfg.OutPath)
	default:
		err = printOverview(os.Stdout, arch)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func dumpJSON(w io.Writer, arch *savearchive.Archive) error {
	data, err := arch.ReadGameData()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func extractImage(arch *savearchive.Archive, id int, outPath string) error {
	b, err := arch.ReadImage(id)
	if err != nil {
		return err
	}
	if err := fileutils.WriteFileAtomicSameDir(outPath, b, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "image=%d bytes=%d out=%s\n", id, len(b), outPath)
	return nil
}

func printOverview(w io.Writer, arch *savearchive.Archive) error {
	fmt.Fprint(w, formatInfo(arch.Info(), arch.ImageCount()))

	data, err := arch.ReadGameData()
	if errors.Is(err, savearchive.ErrNoGameData) {
		fmt.Fprintln(w, "no game data")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprint(w, formatSession(data))

	for id := 0; id < arch.ImageCount(); id++ {
		off, length, err := arch.ImageSpan(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "image %4d  offset=%d bytes=%d\n", id, off, length)
	}
	return nil
}

func formatInfo(info savearchive.Info, imageCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "version=%d region=%d/%d images=%d index_offset=%d\n",
		info.Version, info.GameDataSize, info.GameDataRegionSize, imageCount, info.IndexOffset)
	return b.String()
}

func formatSession(data *weave.GameData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "world=%q pc=%q turns=%d summaries=%d\n",
		data.WorldDescription.Name, data.PC, len(data.TurnData), len(data.Summaries))
	if s, ok := data.LatestSummary(); ok {
		fmt.Fprintf(&b, "summary (turn %d): %s\n", s.Bday,
			fileutils.SanitizeNewlines(fileutils.Truncate(s.Content, 200)))
	}
	if last, ok := data.LastTurn(); ok {
		fmt.Fprintf(&b, "last turn: %s\n",
			fileutils.SanitizeNewlines(fileutils.Truncate(last.Output.Text, 200)))
	}
	return b.String()
}
