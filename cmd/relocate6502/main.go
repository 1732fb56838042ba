// Command relocate6502 drives the relocation analyzer from the command
// line: load a raw binary, run it as a subroutine under analysis, and
// optionally emit a relocated copy for a new load address and zero-page
// window.
//
// Modeled on vcs/vcs_main.go's flag/subcommand structuring, replacing its
// stdlib flag package with gopkg.in/urfave/cli.v2 for the two-subcommand
// surface (run, relocate) this entry point needs.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dschmidt6502/relocate6502/cpu"
	"github.com/dschmidt6502/relocate6502/relocate"

	"gopkg.in/urfave/cli.v2"
)

func main() {
	app := &cli.App{
		Name:    "relocate6502",
		Usage:   "analyze and relocate 6502/6510 machine code subroutines",
		Version: "v0.1.0",
		Commands: []*cli.Command{
			runCommand(),
			relocateCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var commonFlags = []cli.Flag{
	&cli.StringFlag{Name: "program", Aliases: []string{"p"}, Usage: "path to the raw binary to load", Required: true},
	&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Usage: "load address in hex, e.g. 0xC000", Value: "0x0800"},
	&cli.StringFlag{Name: "entry", Aliases: []string{"e"}, Usage: "entry address to call as a subroutine (defaults to origin)"},
	&cli.IntFlag{Name: "max-cycles", Value: 1000000, Usage: "cycle budget before giving up"},
	&cli.BoolFlag{Name: "expect-rti", Usage: "the subroutine returns via RTI instead of RTS"},
	&cli.BoolFlag{Name: "nmos6510", Value: true, Usage: "emulate the full 6510 including undocumented opcodes"},
	&cli.StringFlag{Name: "analysis-start", Usage: "low end of the in-system address window (defaults to origin)"},
	&cli.StringFlag{Name: "analysis-end", Usage: "high end of the in-system address window (defaults to origin+len-1)"},
	&cli.StringSliceFlag{Name: "safe-range", Usage: "start:end:rw safe RAM range, repeatable, e.g. 0x0200:0x02FF:rw"},
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute a subroutine under analysis and print the diagnostic log",
		Flags: commonFlags,
		Action: func(c *cli.Context) error {
			an, _, err := buildAnalyzer(c, false)
			if err != nil {
				return err
			}
			entry, err := entryAddr(c)
			if err != nil {
				return err
			}
			reached, err := an.RunSubroutineAt(entry, c.Int("max-cycles"), true, c.Bool("expect-rti"), false)
			if err != nil {
				return err
			}
			if reached {
				fmt.Fprintln(os.Stderr, "warning: reached cycle limit before the subroutine returned")
			}
			printDiagnostics(an)
			return nil
		},
	}
}

func relocateCommand() *cli.Command {
	flags := append(append([]cli.Flag{}, commonFlags...),
		&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "new load address in hex", Required: true},
		&cli.StringFlag{Name: "out", Usage: "output file for the relocated binary", Required: true},
		&cli.StringFlag{Name: "zp-start", Usage: "low end of the destination zero page window, e.g. 0x80"},
		&cli.StringFlag{Name: "zp-end", Usage: "high end of the destination zero page window, e.g. 0x9F"},
	)
	return &cli.Command{
		Name:  "relocate",
		Usage: "analyze a subroutine then rewrite it for a new load address",
		Flags: flags,
		Action: func(c *cli.Context) error {
			an, _, err := buildAnalyzer(c, false)
			if err != nil {
				return err
			}
			entry, err := entryAddr(c)
			if err != nil {
				return err
			}
			reached, err := an.RunSubroutineAt(entry, c.Int("max-cycles"), true, c.Bool("expect-rti"), false)
			if err != nil {
				return err
			}
			if reached {
				fmt.Fprintln(os.Stderr, "warning: reached cycle limit before the subroutine returned")
			}

			target, err := parseAddr(c.String("target"))
			if err != nil {
				return fmt.Errorf("parsing --target: %w", err)
			}
			var zp *relocate.ZPRange
			if c.String("zp-start") != "" || c.String("zp-end") != "" {
				start, err := parseAddr(c.String("zp-start"))
				if err != nil {
					return fmt.Errorf("parsing --zp-start: %w", err)
				}
				end, err := parseAddr(c.String("zp-end"))
				if err != nil {
					return fmt.Errorf("parsing --zp-end: %w", err)
				}
				zp = &relocate.ZPRange{Start: start, End: end}
			}

			out, err := an.Relocate(target, zp)
			if err != nil {
				printDiagnostics(an)
				return err
			}
			if err := os.WriteFile(c.String("out"), out, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", c.String("out"), err)
			}
			printDiagnostics(an)
			return nil
		},
	}
}

func buildAnalyzer(c *cli.Context, zpEnabled bool) (*relocate.Analyzer, []uint8, error) {
	data, err := os.ReadFile(c.String("program"))
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", c.String("program"), err)
	}
	origin, err := parseAddr(c.String("origin"))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing --origin: %w", err)
	}

	variant := cpu.NMOS6502
	if c.Bool("nmos6510") {
		variant = cpu.NMOS6510
	}

	cfg := relocate.Config{
		Variant:             variant,
		Origin:              origin,
		Bytes:               data,
		AnalysisStart:       origin,
		AnalysisEnd:         origin + uint16(len(data)) - 1,
		ZPRelocationEnabled: c.String("zp-start") != "" || zpEnabled,
	}
	if s := c.String("analysis-start"); s != "" {
		v, err := parseAddr(s)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing --analysis-start: %w", err)
		}
		cfg.AnalysisStart = v
	}
	if s := c.String("analysis-end"); s != "" {
		v, err := parseAddr(s)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing --analysis-end: %w", err)
		}
		cfg.AnalysisEnd = v
	}
	for _, raw := range c.StringSlice("safe-range") {
		sr, err := parseSafeRange(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing --safe-range %q: %w", raw, err)
		}
		cfg.SafeRanges = append(cfg.SafeRanges, sr)
	}

	return relocate.NewAnalyzer(cfg), data, nil
}

func entryAddr(c *cli.Context) (uint16, error) {
	if s := c.String("entry"); s != "" {
		return parseAddr(s)
	}
	return parseAddr(c.String("origin"))
}

func parseAddr(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// parseSafeRange parses "start:end:rw" (rw is any combination of 'r' and 'w').
func parseSafeRange(s string) (relocate.SafeRange, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return relocate.SafeRange{}, fmt.Errorf("want start:end:rw")
	}
	start, err := parseAddr(parts[0])
	if err != nil {
		return relocate.SafeRange{}, err
	}
	end, err := parseAddr(parts[1])
	if err != nil {
		return relocate.SafeRange{}, err
	}
	var flags relocate.AccessFlags
	if strings.ContainsRune(parts[2], 'r') {
		flags |= relocate.AccessRead
	}
	if strings.ContainsRune(parts[2], 'w') {
		flags |= relocate.AccessWrite
	}
	return relocate.SafeRange{Start: start, End: end, Flags: flags}, nil
}

func printDiagnostics(an *relocate.Analyzer) {
	for _, e := range an.Diagnostics() {
		fmt.Printf("%s %s: %s\n", e.Level, e.ID, e.Message)
	}
}
