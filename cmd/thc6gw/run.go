package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WangQiHao-Charlie/thc6gw/internal/gateway"
	"github.com/WangQiHao-Charlie/thc6gw/internal/observability"
	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run <endpoint> [key=value ...] [-- args...]",
		Short: "Invoke one endpoint locally and print its result",
		Example: `  thc6gw run alive6 iface=eth0 target=ff02::1
  thc6gw run thc6 command=thcping6 -- -F fe80::1 eth0 x fe80::2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := observability.InitLogger("thc6gw", observability.LogOptions{
				Level: cfg.LogLevel,
				JSON:  cfg.LogJSON,
				Out:   cmd.ErrOrStderr(),
			})
			dcfg := cfg.DriverConfig()
			dcfg.Logger = &logger

			endpoint, params, rest, err := splitRunArgs(args, cmd.ArgsLenAtDash())
			if err != nil {
				return err
			}
			gw := gateway.New(driver.NewExecDriver(dcfg)).WithLogger(logger)
			return runEndpoint(cmd, gw, endpoint, params, rest, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the command line instead of running it")
	return cmd
}

func runEndpoint(cmd *cobra.Command, gw *gateway.Gateway, endpoint string, params map[string]string, rest []string, dryRun bool) error {
	out := cmd.OutOrStdout()
	if dryRun {
		argv, err := gw.Argv(endpoint, params, rest)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, strings.Join(argv, " "))
		return err
	}
	result, err := gw.Invoke(cmd.Context(), endpoint, params, rest)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, result)
	return err
}

// splitRunArgs separates the endpoint name, key=value parameters and the
// positional args following "--".
func splitRunArgs(args []string, dash int) (string, map[string]string, []string, error) {
	head := args
	var rest []string
	if dash >= 0 {
		head = args[:dash]
		rest = args[dash:]
	}
	if len(head) == 0 {
		return "", nil, nil, fmt.Errorf("endpoint name required before --")
	}
	params := make(map[string]string, len(head)-1)
	for _, kv := range head[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return "", nil, nil, fmt.Errorf("parameter %q is not key=value", kv)
		}
		params[k] = v
	}
	return head[0], params, rest, nil
}
