package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wpsim/hairpin/src/internal/commands"
	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/service"
)

var (
	version = "dev"
	commit  = "n/a"
	date    = "n/a"
)

func main() {
	ctx := &commands.AppContext{}

	// Define flags
	flag.StringVar(&ctx.ConfigPath, "config", config.DefaultConfigPath, "Path to configuration file")
	flag.BoolVar(&ctx.Verbose, "verbose", false, "Enable debug logging")

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Hairpin identity pool manager\n")
		fmt.Fprintf(os.Stderr, "Version: %s (Commit: %s, Date: %s)\n\n", version, commit, date)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  provision               Create identity interfaces, demote the local rule, write proxy config\n")
		fmt.Fprintf(os.Stderr, "  route                   Install hairpin routing for every identity holding an address\n")
		fmt.Fprintf(os.Stderr, "  apply                   Run provision and route\n")
		fmt.Fprintf(os.Stderr, "  status                  Check every component without changing anything\n")
		fmt.Fprintf(os.Stderr, "  proxy-config            Print the proxy configuration to stdout\n")
		fmt.Fprintf(os.Stderr, "  teardown                Remove routing, restore the local rule, delete identity interfaces\n")
		fmt.Fprintf(os.Stderr, "  serve                   Run the HTTP status API\n")
		fmt.Fprintf(os.Stderr, "\nExit codes: 0 success, 1 fatal error, 3 one or more identities degraded\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if ctx.Verbose {
		log.SetVerbose(true)
	}

	cmds := []commands.Runner{
		commands.CreateProvisionCommand(),
		commands.CreateRouteCommand(),
		commands.CreateApplyCommand(),
		commands.CreateStatusCommand(),
		commands.CreateProxyConfigCommand(),
		commands.CreateTeardownCommand(),
		commands.CreateServeCommand(),
	}

	args := flag.Args()

	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	subcommand := args[0]
	for _, cmd := range cmds {
		if cmd.Name() == subcommand {
			if err := cmd.Init(args[1:], ctx); err != nil {
				log.Fatalf("Failed to initialize command: %v", err)
			}

			if err := cmd.Run(); err != nil {
				code := commands.ExitCode(err)
				if code == service.ExitFatal {
					log.Errorf("Failed to run command: %v", err)
				} else {
					log.Warnf("%s finished with degraded identities: %v", subcommand, err)
				}
				os.Exit(code)
			}

			os.Exit(0)
		}
	}

	log.Fatalf("Unknown subcommand: %s", subcommand)
}
