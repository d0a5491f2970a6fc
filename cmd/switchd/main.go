package main

import (
	"fmt"
	"os"
	"strings"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "--version", "version":
			fmt.Println("switchd", version)
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		exitOn("serve", runServe())
		return
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		exitOn("serve", runServe())
	case "list":
		exitOn("list", runList(args))
	case "toggle":
		exitOn("toggle", runToggle(args))
	case "refresh":
		exitOn("refresh", runRefresh(args))
	case "test":
		exitOn("test", runTest(args))
	case "history":
		exitOn("history", runHistory(args))
	case "check":
		exitOn("check", runCheck())
	case "encrypt":
		exitOn("encrypt", runEncrypt(args))
	case "mcp":
		exitOn("mcp", runMCP())
	case "discover":
		exitOn("discover", runDiscover(args))
	case "daemon":
		exitOn("daemon", runDaemon(args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'switchd --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func exitOn(cmd string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`switchd - scriptable on/off switches and one-shot buttons

USAGE:
    switchd [COMMAND] [ARGS] [FLAGS]

COMMANDS:
    serve                 Run the daemon (default)
    list                  Show every switch and its current state
    toggle <id>           Toggle a switch or press a button
                          Flags: --remote URL, --token TOKEN
    refresh <id>          Re-run a switch's status command
    test <id> <role>      Run one command (on, off, single, status) and show its output
    history <id>          Show recent toggles and tests (--limit N)
    check                 Validate the config and the local environment
    encrypt <value>       Encrypt a secret for the config (needs SWITCHD_CONFIG_KEY)
    mcp                   Serve the switches as MCP tools over stdio
    discover              Find gateways advertised on the LAN (--timeout 3s)
    daemon                Manage switchd as a system service
                          Subcommands: install, uninstall, status
    version               Print the version

FLAGS:
    -h, --help            Show this help message
    --config PATH         Config file path (default: ./switchd.yaml)

CONFIGURATION:
    Config file: ./switchd.yaml
    Environment: SWITCHD_* variables override config

EXAMPLES:
    switchd                          # Run the daemon
    switchd list                     # Show switch states
    switchd toggle dark-mode         # Flip dark mode locally
    switchd toggle wifi --remote ws://10.0.0.2:8787/ws --token s3cret
    switchd test wifi status         # Debug a status command`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SWITCHD_CONFIG"); p != "" {
		return p
	}
	return "switchd.yaml"
}

// flagValue returns the value of --name from args, in either "--name v" or
// "--name=v" form.
func flagValue(args []string, name string) string {
	flag := "--" + name
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, flag+"=") {
			return strings.TrimPrefix(arg, flag+"=")
		}
	}
	return ""
}

// positional drops flags and their values from args.
func positional(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--") {
			if !strings.Contains(arg, "=") && i+1 < len(args) {
				i++
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}
