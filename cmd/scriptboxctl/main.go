// Command scriptboxctl loads a Lua guest script into a scriptbox.Sandbox
// and drives it from an interactive REPL: call guest functions, inspect
// accumulated output, and watch quota usage.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"scriptbox"
)

const defaultConfigPath = "configs/scriptboxctl.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to config file")
	scriptPath := flag.String("script", "", "path to the guest Lua script to load (required)")
	moduleRoot := flag.String("module-root", "", "override moduleRoot from config")
	pretty := flag.Bool("pretty", false, "pretty-print JSON output")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "error: -script is required")
		os.Exit(2)
	}

	fc, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *moduleRoot != "" {
		fc.ModuleRoot = *moduleRoot
	}
	if *pretty {
		fc.Pretty = true
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	source, err := os.ReadFile(*scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read script failed: %v\n", err)
		os.Exit(1)
	}

	sb := scriptbox.New(fc.sandboxConfig(), logger)
	if err := sb.Init(string(source)); err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	defer sb.Terminate()

	sess, err := newSession(sb, fc.Pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session init failed: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	sess.Run()
}
