package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rv64ima/emulator/api"
	"github.com/rv64ima/emulator/config"
	"github.com/rv64ima/emulator/debugger"
	"github.com/rv64ima/emulator/loader"
	sys "github.com/rv64ima/emulator/syscall"
	"github.com/rv64ima/emulator/vm"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"     // Version number (set by git tag at build time)
	Commit  = "unknown" // Git commit hash
	Date    = "unknown" // Build date
)

func main() {
	// Command-line flags
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		debugMode   = flag.Bool("debug", false, "Start in debugger mode")
		tuiMode     = flag.Bool("tui", false, "Use TUI (Text User Interface) debugger")
		guiMode     = flag.Bool("gui", false, "Use graphical debugger")
		apiServer   = flag.Bool("api-server", false, "Start HTTP API server mode")
		apiPort     = flag.Int("port", 8080, "API server port (used with -api-server)")
		ramSize     = flag.Uint64("ram-size", 64<<20, "RAM size in bytes mapped at address 0")
		maxSteps    = flag.Uint64("max-steps", 0, "Maximum instructions to execute before halt (0 = unbounded)")
		entryOverride = flag.String("entry", "", "Override the ELF entry point (hex or decimal)")
		verboseMode = flag.Bool("verbose", false, "Verbose output")
		fsRoot      = flag.String("fsroot", "", "Restrict file operations to this directory (default: current directory)")

		// Tracing and statistics flags
		enableTrace    = flag.Bool("trace", false, "Enable execution trace")
		traceFile      = flag.String("trace-file", "", "Trace output file (default: trace.log in log dir)")
		traceFilter    = flag.String("trace-filter", "", "Filter trace by registers (comma-separated, e.g., a0,a1,pc)")
		enableMemTrace = flag.Bool("mem-trace", false, "Enable memory access trace")
		memTraceFile   = flag.String("mem-trace-file", "", "Memory trace output file (default: memtrace.log)")
		enableRegTrace = flag.Bool("register-trace", false, "Enable register access pattern tracing")
		regTraceFile   = flag.String("register-trace-file", "", "Register trace output file (default: register_trace.log)")
		enableStats    = flag.Bool("stats", false, "Enable performance statistics")
		statsFile      = flag.String("stats-file", "", "Statistics output file (default: stats.json)")
		statsFormat    = flag.String("stats-format", "json", "Statistics format (json, csv, html)")

		// Symbol dump options
		dumpSymbols = flag.Bool("dump-symbols", false, "Dump symbol table and exit")
		symbolsFile = flag.String("symbols-file", "", "Symbol dump output file (default: stdout)")
	)

	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("RV64IMA Emulator %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		if Date != "unknown" {
			fmt.Printf("Built: %s\n", Date)
		}
		os.Exit(0)
	}

	// Show help
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// Start API server mode if requested
	if *apiServer {
		server := api.NewServerWithVersion(*apiPort, Version, Commit, Date)

		// Setup graceful shutdown
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		// Create shutdown function with sync.Once to ensure it runs only once
		// This prevents race conditions between signal handler and process monitor
		var shutdownOnce sync.Once
		performShutdown := func() {
			shutdownOnce.Do(func() {
				fmt.Println("\nShutting down API server...")

				// Graceful shutdown with timeout
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
					os.Exit(1)
				}

				fmt.Println("API server stopped")
				os.Exit(0)
			})
		}

		// Start process monitor to detect parent death (frontend crash/force-quit)
		// This prevents orphaned backend processes when the GUI terminates unexpectedly
		monitor := api.NewProcessMonitor(performShutdown)
		monitor.Start()

		// Start server in goroutine
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "API server error: %v\n", err)
				os.Exit(1)
			}
		}()

		// Wait for shutdown signal (Ctrl+C or SIGTERM)
		<-sigChan
		performShutdown()
		return
	}

	// Require an ELF binary for emulator mode
	if flag.NArg() == 0 {
		printHelp()
		os.Exit(0)
	}

	elfFile := flag.Arg(0)
	if _, err := os.Stat(elfFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found: %s\n", elfFile)
		os.Exit(1)
	}

	if *verboseMode {
		fmt.Printf("Loading ELF binary: %s\n", elfFile)
	}

	// Create VM instance
	machine := vm.NewMachine(*ramSize)
	machine.MaxSteps = *maxSteps

	// Load the ELF image: maps PT_LOAD segments, sets PC/SP/privilege
	result, err := loader.Load(elfFile, machine, *ramSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	// An -entry override replaces the ELF header's recorded entry point,
	// for binaries that want execution to start somewhere other than
	// _start (e.g. a hand-placed test harness).
	if *entryOverride != "" {
		addr, err := parseAddress(*entryOverride)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid entry point: %s\n", *entryOverride)
			os.Exit(1)
		}
		machine.CPU.PC = addr
	}

	// Configure filesystem root for sandboxing
	filesystemRoot := *fsRoot
	if filesystemRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting current directory: %v\n", err)
			os.Exit(1)
		}
		filesystemRoot = cwd
	}
	absRoot, err := filepath.Abs(filesystemRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving filesystem root path: %v\n", err)
		os.Exit(1)
	}

	if *verboseMode {
		fmt.Printf("Filesystem root: %s\n", absRoot)
	}

	exitCode := sys.Install(machine, sys.Config{
		FSRoot:    absRoot,
		HeapStart: result.HeapBase,
	})

	// Symbol table for the debugger (name -> address), inverted from the
	// loader's address -> name map
	symbols := make(map[string]uint64, len(result.Symbols))
	for addr, name := range result.Symbols {
		symbols[name] = addr
	}

	if *verboseMode {
		fmt.Printf("Entry point: 0x%016X\n", machine.CPU.PC)
		fmt.Printf("Heap base:   0x%016X\n", result.HeapBase)
		fmt.Printf("Symbols: %d labels defined\n", len(symbols))
	}

	// Handle symbol dump if requested
	if *dumpSymbols {
		if err := dumpSymbolTable(result.Symbols, *symbolsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error dumping symbols: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Setup tracing and statistics
	if *enableTrace {
		tracePath := *traceFile
		if tracePath == "" {
			tracePath = filepath.Join(config.GetLogPath(), "trace.log")
		}

		traceWriter, err := os.Create(tracePath) // #nosec G304 -- user-specified trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := traceWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close trace file: %v\n", err)
			}
		}()

		machine.ExecutionTrace = vm.NewExecutionTrace(traceWriter)
		machine.ExecutionTrace.LoadSymbols(result.Symbols)
		machine.ExecutionTrace.Start()

		if *traceFilter != "" {
			machine.ExecutionTrace.SetFilterRegisters(strings.Split(*traceFilter, ","))
		}

		if *verboseMode {
			fmt.Printf("Execution trace enabled: %s\n", tracePath)
		}
	}

	if *enableMemTrace {
		memTracePath := *memTraceFile
		if memTracePath == "" {
			memTracePath = filepath.Join(config.GetLogPath(), "memtrace.log")
		}

		memTraceWriter, err := os.Create(memTracePath) // #nosec G304 -- user-specified memory trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory trace file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := memTraceWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close memory trace file: %v\n", err)
			}
		}()

		machine.MemoryTrace = vm.NewMemoryTrace(memTraceWriter)
		machine.MemoryTrace.LoadSymbols(result.Symbols)
		machine.MemoryTrace.Start()

		if *verboseMode {
			fmt.Printf("Memory trace enabled: %s\n", memTracePath)
		}
	}

	if *enableRegTrace {
		regTracePath := *regTraceFile
		if regTracePath == "" {
			regTracePath = filepath.Join(config.GetLogPath(), "register_trace.log")
		}

		regTraceWriter, err := os.Create(regTracePath) // #nosec G304 -- user-specified register trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating register trace file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := regTraceWriter.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close register trace file: %v\n", err)
			}
		}()

		machine.RegisterTrace = vm.NewRegisterTrace(regTraceWriter)
		machine.RegisterTrace.LoadSymbols(result.Symbols)
		machine.RegisterTrace.Start()

		if *verboseMode {
			fmt.Printf("Register trace enabled: %s\n", regTracePath)
		}
	}

	if *enableStats {
		machine.Statistics = vm.NewPerformanceStatistics()
		machine.Statistics.Start()

		if *verboseMode {
			fmt.Println("Performance statistics enabled")
		}
	}

	// Run in appropriate mode
	if *debugMode || *tuiMode || *guiMode {
		dbg := debugger.NewDebugger(machine)
		dbg.LoadSymbols(symbols)

		switch {
		case *guiMode:
			if err := debugger.RunGUI(dbg); err != nil {
				fmt.Fprintf(os.Stderr, "GUI error: %v\n", err)
				os.Exit(1)
			}
		case *tuiMode:
			if err := debugger.RunTUI(dbg); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
				os.Exit(1)
			}
		default:
			fmt.Println("RV64IMA Debugger - Type 'help' for commands")
			fmt.Printf("Program loaded: %s\n", elfFile)
			fmt.Println()

			if err := debugger.RunCLI(dbg); err != nil {
				fmt.Fprintf(os.Stderr, "Debugger error: %v\n", err)
				os.Exit(1)
			}
		}
	} else {
		// Direct execution mode
		if *verboseMode {
			fmt.Println("\nStarting execution...")
			fmt.Println("----------------------------------------")
		}

		machine.State = vm.StateRunning
		for machine.State == vm.StateRunning {
			if err := machine.Step(); err != nil {
				fmt.Fprintf(os.Stderr, "\nFatal trap at PC=0x%016X: %v\n", machine.CPU.PC, err)
				os.Exit(1)
			}
		}

		if *verboseMode {
			fmt.Println("\n----------------------------------------")
			fmt.Println("Execution complete")
			fmt.Printf("Exit code: %d\n", exitCode())
			fmt.Printf("CPU cycles: %d\n", machine.CPU.Cycles)
		}

		// Flush traces and export statistics
		if machine.ExecutionTrace != nil {
			if err := machine.ExecutionTrace.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing execution trace: %v\n", err)
			}
			if *verboseMode {
				fmt.Printf("Execution trace written (%d entries)\n", len(machine.ExecutionTrace.GetEntries()))
			}
		}

		if machine.MemoryTrace != nil {
			if err := machine.MemoryTrace.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing memory trace: %v\n", err)
			}
			if *verboseMode {
				fmt.Printf("Memory trace written (%d entries)\n", len(machine.MemoryTrace.GetEntries()))
			}
		}

		if machine.RegisterTrace != nil {
			if err := machine.RegisterTrace.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing register trace: %v\n", err)
			}
			if *verboseMode {
				fmt.Printf("Register trace written (%d entries)\n", len(machine.RegisterTrace.GetEntries()))
			}
		}

		if machine.Statistics != nil {
			statPath := *statsFile
			if statPath == "" {
				ext := "json"
				if *statsFormat == "csv" {
					ext = "csv"
				} else if *statsFormat == "html" {
					ext = "html"
				}
				statPath = filepath.Join(config.GetLogPath(), "stats."+ext)
			}

			statsWriter, err := os.Create(statPath) // #nosec G304 -- user-specified stats output path
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating statistics file: %v\n", err)
			} else {
				defer func() {
					if err := statsWriter.Close(); err != nil {
						fmt.Fprintf(os.Stderr, "Warning: failed to close statistics file: %v\n", err)
					}
				}()

				switch *statsFormat {
				case "csv":
					err = machine.Statistics.ExportCSV(statsWriter)
				case "html":
					err = machine.Statistics.ExportHTML(statsWriter)
				default:
					err = machine.Statistics.ExportJSON(statsWriter)
				}

				if err != nil {
					fmt.Fprintf(os.Stderr, "Error exporting statistics: %v\n", err)
				} else if *verboseMode {
					fmt.Printf("Statistics exported: %s\n", statPath)
				}
			}

			if *verboseMode {
				fmt.Println()
				fmt.Println(machine.Statistics.String())
			}
		}

		os.Exit(int(exitCode()))
	}
}

// parseAddress accepts either a 0x-prefixed hex literal or a decimal
// number, matching the notation used for breakpoint and watch addresses
// throughout the debugger.
func parseAddress(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func printHelp() {
	fmt.Printf(`RV64IMA Emulator %s

Usage: rv64-emulator [options] <elf-file>
       rv64-emulator -api-server [-port N]

Options:
  -help              Show this help message
  -version           Show version information
  -api-server        Start HTTP API server mode (no ELF file required)
  -port N            API server port (default: 8080, used with -api-server)
  -debug             Start in debugger mode (CLI)
  -tui               Start in TUI debugger mode
  -gui               Start in graphical debugger mode
  -ram-size N        RAM size in bytes mapped at address 0 (default: 64MiB)
  -max-steps N       Maximum instructions to execute before halt (default: unbounded)
  -entry ADDR        Override the ELF entry point (hex or decimal)
  -verbose           Enable verbose output
  -fsroot DIR        Restrict file operations to directory (default: current directory)

Symbol Options:
  -dump-symbols      Dump symbol table and exit
  -symbols-file FILE Symbol dump output file (default: stdout)

Tracing & Performance Options:
  -trace             Enable execution trace
  -trace-file FILE   Trace output file (default: trace.log in log dir)
  -trace-filter REGS Filter trace by registers (e.g., a0,a1,pc)
  -mem-trace         Enable memory access trace
  -mem-trace-file F  Memory trace file (default: memtrace.log)
  -register-trace    Enable register access pattern tracing
  -register-trace-file F Register trace file (default: register_trace.log)
  -stats             Enable performance statistics
  -stats-file FILE   Statistics output file (default: stats.json)
  -stats-format FMT  Statistics format: json, csv, html (default: json)

Examples:
  # Start API server for GUI frontends
  rv64-emulator -api-server
  rv64-emulator -api-server -port 3000

  # Run a program directly
  rv64-emulator examples/hello.elf

  # Run with debugger
  rv64-emulator -debug examples/fibonacci.elf

  # Run with TUI debugger
  rv64-emulator -tui examples/bubble_sort.elf

  # Run with custom settings
  rv64-emulator -max-steps 5000000 -entry 0x10000 program.elf

  # Run with execution trace
  rv64-emulator -trace -trace-filter "a0,a1,pc" examples/factorial.elf

  # Run with performance statistics
  rv64-emulator -stats -stats-format html program.elf

  # Dump symbol table
  rv64-emulator -dump-symbols program.elf
  rv64-emulator -dump-symbols -symbols-file symbols.txt program.elf

  # Restrict file operations to a specific directory
  rv64-emulator -fsroot /tmp/sandbox program.elf

Debugger Commands (when in -debug mode):
  run, r             Start/restart program execution
  continue, c        Continue execution
  step, s            Execute single instruction
  next, n            Step over function calls
  break ADDR         Set breakpoint at address/label
  info registers     Show all registers
  print EXPR         Evaluate and print expression
  help               Show debugger help

For more information, see the README.md file.
`, Version)
}

// dumpSymbolTable outputs the symbol table in a readable format, sorted
// by address.
func dumpSymbolTable(symbols map[uint64]string, filename string) error {
	var writer *os.File
	var err error

	if filename == "" {
		writer = os.Stdout
	} else {
		writer, err = os.Create(filename) // #nosec G304 -- user-specified symbol output path
		if err != nil {
			return fmt.Errorf("failed to create symbol file: %w", err)
		}
		defer func() {
			if cerr := writer.Close(); cerr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close symbol file: %v\n", cerr)
			}
		}()
	}

	if len(symbols) == 0 {
		_, _ = fmt.Fprintln(writer, "No symbols defined")
		return nil
	}

	_, _ = fmt.Fprintln(writer, "Symbol Table")
	_, _ = fmt.Fprintln(writer, "============")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "%-30s %s\n", "Name", "Address")
	_, _ = fmt.Fprintln(writer, "--------------------------------------------------------------------------------")

	type symbolEntry struct {
		addr uint64
		name string
	}
	entries := make([]symbolEntry, 0, len(symbols))
	for addr, name := range symbols {
		entries = append(entries, symbolEntry{addr, name})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].addr < entries[j].addr
	})

	for _, entry := range entries {
		_, _ = fmt.Fprintf(writer, "%-30s 0x%016X\n", entry.name, entry.addr)
	}

	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "Total symbols: %d\n", len(entries))

	return nil
}
