package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/config"
	"github.com/meta-node-blockchain/benor/pkg/logger"
	"github.com/meta-node-blockchain/benor/pkg/simulation"
	"github.com/meta-node-blockchain/benor/pkg/storage"
)

func parseInts(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad list entry %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func optional[T any](p *T) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func printReport(rep simulation.Report) {
	data := pterm.TableData{{"id", "faulty", "input", "x", "decided", "k", "killed"}}
	for _, nr := range rep.Nodes {
		data = append(data, []string{
			strconv.Itoa(nr.ID),
			strconv.FormatBool(nr.Faulty),
			nr.InitialValue.String(),
			optional(nr.State.X),
			optional(nr.State.Decided),
			optional(nr.State.K),
			strconv.FormatBool(nr.State.Killed),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Error.Println(err)
	}
}

func main() {
	configFile := flag.String("config", "", "Cluster configuration file; overrides the flags below")
	numNodes := flag.Int("n", 4, "Number of nodes")
	numFaulty := flag.Int("f", 1, "Tolerated faulty nodes")
	values := flag.String("values", "", "Comma separated initial values, one per node")
	faulty := flag.String("faulty", "", "Comma separated ids of crashed nodes")
	transport := flag.String("transport", config.TRANSPORT_LOCAL, "local or http")
	coin := flag.String("coin", "", "parity, hash or common")
	codec := flag.String("codec", "", "json or proto (http transport)")
	phaseWait := flag.Duration("phase-wait", binaryagreement.DefaultPhaseWait, "Wait after each broadcast")
	basePort := flag.Int("base-port", config.DefaultBasePort, "First port of an http cluster")
	dropRate := flag.Float64("drop-rate", 0, "Message drop probability (local transport)")
	maxLatency := flag.Duration("max-latency", 0, "Upper bound of per-message latency (local transport)")
	timeout := flag.Duration("timeout", config.DefaultTimeout, "Give up after this long")
	traceType := flag.String("trace", "", "Journal store: memory, level or badger")
	tracePath := flag.String("trace-path", "", "Directory of an on-disk journal")
	backupDir := flag.String("backup", "", "Copy the on-disk journal here after the run")
	logDir := flag.String("log-dir", "", "Directory for per-node log files")
	logLevel := flag.String("log-level", "warn", "trace, debug, info, warn, error or none")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	logger.SetFlag(level)

	var cfg config.ClusterConfig
	if *configFile != "" {
		loaded, err := config.LoadClusterConfigFromFile(*configFile)
		if err != nil {
			pterm.Error.Println(err)
			os.Exit(2)
		}
		cfg = *loaded
	} else {
		initial, err := parseInts(*values)
		if err != nil {
			pterm.Error.Printfln("-values: %v", err)
			os.Exit(2)
		}
		crashed, err := parseInts(*faulty)
		if err != nil {
			pterm.Error.Printfln("-faulty: %v", err)
			os.Exit(2)
		}
		cfg = config.ClusterConfig{
			NumNodes:      *numNodes,
			NumFaulty:     *numFaulty,
			InitialValues: initial,
			FaultyNodes:   crashed,
			Transport:     *transport,
			BasePort:      *basePort,
			DropRate:      *dropRate,
			MaxLatency:    config.Duration(*maxLatency),
			Timeout:       config.Duration(*timeout),
			EngineConfig: config.EngineConfig{
				PhaseWait: config.Duration(*phaseWait),
				Coin:      *coin,
				Codec:     *codec,
				LogDir:    *logDir,
				Trace:     config.TraceConfig{Type: *traceType, Path: *tracePath},
			},
		}
	}

	cluster, err := simulation.NewCluster(cfg)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	pterm.Info.Printfln("Run %s: N=%d F=%d over %s", cluster.RunID(), cfg.NumNodes, cfg.NumFaulty, cfg.Transport)

	spinner, _ := pterm.DefaultSpinner.Start("Running consensus...")
	rep, runErr := cluster.Run(context.Background())
	cluster.Stop()
	switch {
	case runErr == nil:
		spinner.Success(fmt.Sprintf("Finished in %v", rep.Elapsed.Round(time.Millisecond)))
	case errors.Is(runErr, context.DeadlineExceeded):
		spinner.Warning("Timed out before every node finished")
	default:
		spinner.Fail(runErr.Error())
		os.Exit(2)
	}

	printReport(rep)

	if *backupDir != "" && cfg.Trace.Path != "" && cfg.Trace.Type != storage.STORAGE_TYPE_MEMORY_DB {
		if err := storage.Backup(cfg.Trace.Path, *backupDir); err != nil {
			pterm.Error.Printfln("Backup failed: %v", err)
		} else {
			pterm.Info.Printfln("Journal copied to %s", *backupDir)
		}
	}

	if !rep.Agreement || !rep.Validity {
		pterm.Error.Printfln("Safety violated: agreement=%v validity=%v", rep.Agreement, rep.Validity)
		os.Exit(1)
	}
	if !rep.AllDecided() {
		pterm.Warning.Printfln("%d of %d correct nodes decided", rep.Decided, rep.Correct)
		return
	}
	pterm.Success.Printfln("All %d correct nodes decided %s", rep.Correct, rep.Value)
}
