package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/gnss-adapter/internal/nbi"
)

// execute registers the client, runs one command and prints the response.
func execute(cmd *cobra.Command, opts *rootOptions, command string, args map[string]any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	conn, client, err := opts.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if command != "new_session_id" {
		if _, err := client.Execute(ctx, opts.ClientID, "register_client", nil); err != nil {
			return err
		}
	}
	out, err := client.Execute(ctx, opts.ClientID, command, args)
	if err != nil {
		return err
	}
	if err := printStruct(cmd.OutOrStdout(), opts.Format, out); err != nil {
		return err
	}
	return nbi.ResultError(out)
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the adapter state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			conn, client, err := opts.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			st, err := client.Status(ctx)
			if err != nil {
				return err
			}
			return printStruct(cmd.OutOrStdout(), opts.Format, st)
		},
	}
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Run any adapter command",
		Long: `Run any adapter command with JSON arguments.

Example:
  gnssctl exec update_config --args '{"items":[{"field":"min_sv_elevation","degrees":10}]}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var argsMap map[string]any
			if err := json.Unmarshal([]byte(rawArgs), &argsMap); err != nil {
				return fmt.Errorf("invalid --args JSON: %w", err)
			}
			return execute(cmd, opts, args[0], argsMap)
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "command arguments as JSON")
	return cmd
}

type trackOptions struct {
	Mode        string
	Interval    time.Duration
	MinDistance float64
	Tech        []string
	Duration    time.Duration
	Reports     []string
}

func newTrackCommand(opts *rootOptions) *cobra.Command {
	to := &trackOptions{}
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Start a tracking session and print reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrack(cmd, opts, to)
		},
	}
	cmd.Flags().StringVar(&to.Mode, "mode", "time", "tracking mode (time|distance)")
	cmd.Flags().DurationVar(&to.Interval, "interval", time.Second, "report interval")
	cmd.Flags().Float64Var(&to.MinDistance, "min-distance", 0, "minimum displacement in metres for distance mode")
	cmd.Flags().StringSliceVar(&to.Tech, "tech", nil, "accepted technologies (gnss,cell,wifi,...)")
	cmd.Flags().DurationVar(&to.Duration, "duration", 0, "stop after this long; zero runs until interrupted")
	cmd.Flags().StringSliceVar(&to.Reports, "reports", []string{nbi.EventPosition}, "event types to print")
	return cmd
}

func runTrack(cmd *cobra.Command, opts *rootOptions, to *trackOptions) error {
	ctx := cmd.Context()
	if to.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, to.Duration)
		defer cancel()
	}

	conn, client, err := opts.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub, err := client.Subscribe(ctx, opts.ClientID, to.Reports...)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	idResp, err := client.Execute(reqCtx, opts.ClientID, "new_session_id", nil)
	cancel()
	if err != nil {
		return err
	}
	session := idResp.GetFields()["session"].GetNumberValue()

	tech := make([]any, 0, len(to.Tech))
	for _, t := range to.Tech {
		tech = append(tech, t)
	}
	reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	out, err := client.Execute(reqCtx, opts.ClientID, "start_tracking", map[string]any{
		"session":        session,
		"mode":           to.Mode,
		"interval_ms":    float64(to.Interval.Milliseconds()),
		"min_distance_m": to.MinDistance,
		"capabilities":   tech,
	})
	cancel()
	if err != nil {
		return err
	}
	if err := nbi.ResultError(out); err != nil {
		return fmt.Errorf("start tracking: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "tracking session %d\n", int(session))

	return printEvents(ctx, cmd.OutOrStdout(), opts.Format, sub)
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var reports []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print callbacks delivered to this client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, client, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			sub, err := client.Subscribe(cmd.Context(), opts.ClientID, reports...)
			if err != nil {
				return err
			}
			return printEvents(cmd.Context(), cmd.OutOrStdout(), opts.Format, sub)
		},
	}
	cmd.Flags().StringSliceVar(&reports, "reports", nil, "event types to print; empty prints everything")
	return cmd
}

type eventSource interface {
	Recv() (*structpb.Struct, error)
}

func printEvents(ctx context.Context, w io.Writer, format string, sub eventSource) error {
	for {
		ev, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := printStruct(w, format, ev); err != nil {
			return err
		}
	}
}

func newNiCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ni",
		Short: "Network-initiated request handling",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "respond <id> <accept|deny|no_response>",
		Short: "Answer an outstanding NI request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			return execute(cmd, opts, "respond_to_ni", map[string]any{
				"id":       float64(id),
				"response": args[1],
			})
		},
	})
	return cmd
}

func newInjectLocationCommand(opts *rootOptions) *cobra.Command {
	var (
		lat, lon, alt, acc float64
		odcpi              bool
	)
	cmd := &cobra.Command{
		Use:   "inject-location",
		Short: "Inject a coarse position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			command := "inject_location"
			if odcpi {
				command = "inject_odcpi"
			}
			return execute(cmd, opts, command, map[string]any{
				"latitude":   lat,
				"longitude":  lon,
				"altitude_m": alt,
				"accuracy_m": acc,
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude in degrees")
	cmd.Flags().Float64Var(&alt, "alt", 0, "altitude in metres")
	cmd.Flags().Float64Var(&acc, "accuracy", 100, "horizontal accuracy in metres")
	cmd.Flags().BoolVar(&odcpi, "odcpi", false, "answer an on-demand position request instead")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func newSvCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sv",
		Short: "Satellite configuration",
	}

	var blacklist, enabled, secondary []string
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the blacklist or constellation masks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := map[string]any{}
			if cmd.Flags().Changed("blacklist") {
				entries, err := parseBlacklist(blacklist)
				if err != nil {
					return err
				}
				args["blacklist"] = entries
			}
			if cmd.Flags().Changed("enabled") {
				args["enabled"] = toList(enabled)
			}
			if cmd.Flags().Changed("secondary-band") {
				args["secondary_band"] = toList(secondary)
			}
			if len(args) == 0 {
				return errors.New("nothing to set: pass --blacklist, --enabled or --secondary-band")
			}
			return execute(cmd, opts, "set_sv_config", args)
		},
	}
	set.Flags().StringSliceVar(&blacklist, "blacklist", nil, "blacklisted SVs as constellation:svid")
	set.Flags().StringSliceVar(&enabled, "enabled", nil, "enabled constellations")
	set.Flags().StringSliceVar(&secondary, "secondary-band", nil, "constellations allowed to use their secondary band")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default satellite configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, opts, "reset_sv_config", nil)
		},
	}

	cmd.AddCommand(set, reset)
	return cmd
}

func toList(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// parseBlacklist turns "gps:5" entries into envelope objects.
func parseBlacklist(entries []string) ([]any, error) {
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		name, svid, ok := strings.Cut(e, ":")
		if !ok {
			return nil, fmt.Errorf("blacklist entry %q: want constellation:svid", e)
		}
		n, err := strconv.Atoi(svid)
		if err != nil {
			return nil, fmt.Errorf("blacklist entry %q: %w", e, err)
		}
		out = append(out, map[string]any{"constellation": name, "svid": float64(n)})
	}
	return out, nil
}
