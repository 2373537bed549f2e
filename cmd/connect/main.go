package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/cyclopcam/connect/cmd/base"
	"github.com/cyclopcam/connect/lib/config"
	"github.com/cyclopcam/connect/lib/router"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type options struct {
	ConfigFile string `short:"C" long:"configfile" env:"CYCLOPS_CONFIG" description:"Path to the YAML configuration file"`
	LogFile    string `long:"logfile" env:"CYCLOPS_LOGFILE" description:"Also write the log to this file"`
	DebugLevel string `short:"d" long:"debuglevel" default:"info" description:"Logging level {trace, debug, info, warn, error, critical}"`
	ForceRelay bool   `long:"forcerelay" description:"Never connect over the LAN"`
}

var opts options

// setup loads the configuration and wires all components.
func setup() (*base.Components, error) {
	if err := base.SetLogLevels(opts.DebugLevel); err != nil {
		return nil, err
	}
	if opts.LogFile != "" {
		if err := base.InitLogRotator(opts.LogFile); err != nil {
			return nil, err
		}
	}
	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if opts.ForceRelay {
		cfg.Router.ForceRelay = true
	}
	return base.Build(&cfg)
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type scanCommand struct {
	Timeout time.Duration `long:"timeout" default:"30s" description:"Give up after this long"`
}

func (cmd *scanCommand) Execute(args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := interruptContext()
	defer cancel()

	state, err := c.Scan(ctx, cmd.Timeout)
	if err != nil {
		return err
	}
	if !isTerminal() {
		for _, candidate := range state.Candidates {
			fmt.Printf("%v\t%v\t%v\n", candidate.Address, candidate.Hostname, candidate.PublicKey)
		}
		return nil
	}
	fmt.Printf("Scanned %v hosts from %v\n", state.Scanned, state.SelfAddress)
	for _, candidate := range state.Candidates {
		fmt.Printf("%-16v %-20v %v\n", candidate.Address, candidate.Hostname, candidate.PublicKey)
	}
	return nil
}

// isTerminal reports whether output goes to a terminal rather than a pipe.
// Pipes get tab separated lines without decoration.
func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type devicesCommand struct{}

func (cmd *devicesCommand) Execute(args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	last, _ := c.Registry.LastUsed()
	for _, r := range c.Registry.All() {
		if !isTerminal() {
			fmt.Printf("%v\t%v\t%v\n", r.Name, r.LanIP, r.ID)
			continue
		}
		marker := " "
		if r.ID == last.ID {
			marker = "*"
		}
		fmt.Printf("%v %-20v %-16v %v\n", marker, r.Name, r.LanIP, r.ID)
	}
	return nil
}

type addCommand struct {
	Args struct {
		Address string `positional-arg-name:"address"`
		ID      string `positional-arg-name:"publickey"`
		Token   string `positional-arg-name:"token"`
	} `positional-args:"yes" required:"yes"`
	Name    string `long:"name" description:"Name of the device"`
	Session string `long:"session" description:"Session cookie, if one is known"`
}

func (cmd *addCommand) Execute(args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Registry.Upsert(cmd.Args.Address, cmd.Args.ID, cmd.Args.Token, cmd.Name, cmd.Session)
}

type removeCommand struct {
	Args struct {
		ID string `positional-arg-name:"publickey"`
	} `positional-args:"yes" required:"yes"`
}

func (cmd *removeCommand) Execute(args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Registry.Remove(cmd.Args.ID)
}

type connectCommand struct {
	Args struct {
		ID string `positional-arg-name:"publickey"`
	} `positional-args:"yes"`
}

func (cmd *connectCommand) Execute(args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := interruptContext()
	defer cancel()

	id := cmd.Args.ID
	if id == "" {
		last, ok := c.Registry.LastUsed()
		if !ok {
			last, ok = c.Registry.Any()
		}
		if !ok {
			return errors.New("no devices")
		}
		id = last.ID
	}
	decision, err := c.Router.Connect(ctx, id, router.ModeSwitch)
	if err != nil {
		return err
	}
	fmt.Printf("%v %v\n", router.PathName(decision.Path), decision.Origin)
	return nil
}

type serveCommand struct {
	Listen string `long:"listen" description:"Address of the HTTP API (overrides the config)"`
}

func (cmd *serveCommand) Execute(args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := interruptContext()
	defer cancel()

	listen := c.Config.API.Listen
	if cmd.Listen != "" {
		listen = cmd.Listen
	}
	if last, ok := c.Registry.LastUsed(); ok {
		result := <-c.Router.ConnectAsync(ctx, last.ID, router.ModeSwitch)
		if result.Err != nil {
			base.Log.Warnf("Cannot reach last used device: %v", result.Err)
		}
	}
	go func() {
		if err := c.Router.Watch(ctx, c.Tracker); err != nil {
			base.Log.Errorf("Network tracking stopped: %v", err)
		}
	}()
	return c.API().ListenAndServe(ctx, listen)
}

type resetCommand struct{}

func (cmd *resetCommand) Execute(args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Registry.Reset()
}

type configCommand struct{}

func (cmd *configCommand) Execute(args []string) error {
	cfg := config.Default()
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	return nil
}

func main() {
	// Settings can also come from a .env file in the working directory.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "failed to read .env:", err)
	}

	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("scan", "Scan the local network", "Scan the /24 network of this machine for devices.", &scanCommand{})
	parser.AddCommand("devices", "List known devices", "List the devices that were logged in to. The last used one is marked.", &devicesCommand{})
	parser.AddCommand("add", "Add a device", "Record a login to a device.", &addCommand{})
	parser.AddCommand("rm", "Remove a device", "Forget a device.", &removeCommand{})
	parser.AddCommand("connect", "Connect to a device", "Find the best path to a device, the last used one by default.", &connectCommand{})
	parser.AddCommand("serve", "Serve the HTTP API", "Serve the HTTP API for the UI and follow network changes.", &serveCommand{})
	parser.AddCommand("reset", "Forget all devices", "Remove every device.", &resetCommand{})
	parser.AddCommand("config", "Print the default configuration", "Print the default configuration as YAML.", &configCommand{})

	_, err := parser.Parse()
	base.CloseLogRotator()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) {
			if e.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
