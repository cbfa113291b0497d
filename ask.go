package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/jsonx"
	"github.com/n0madic/go-chatpipe/internal/pipe"
	"github.com/n0madic/go-chatpipe/internal/status"
	"github.com/n0madic/go-chatpipe/internal/types"
)

type askOptions struct {
	system      string
	noStream    bool
	maxTokens   int
	temperature float64
	quiet       bool
}

func newAskCmd(cfg *config.Config) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <model> <prompt...>",
		Short: "Send one prompt through a pipe and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			req := buildAskRequest(args[0], strings.Join(args[1:], " "), opts)
			var emitter status.Emitter = statusPrinter(cmd.ErrOrStderr())
			if opts.quiet {
				emitter = status.Nop
			}
			return runAsk(ctx, newRegistry(*cfg), req, emitter, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "Wait for the full reply instead of streaming")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Maximum output tokens")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", -1, "Sampling temperature")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print status events")
	return cmd
}

func buildAskRequest(model, prompt string, opts askOptions) *types.ChatRequest {
	streaming := !opts.noStream
	req := &types.ChatRequest{Model: model, Stream: &streaming}
	if opts.system != "" {
		req.Messages = append(req.Messages, types.NewTextMessage("system", opts.system))
	}
	req.Messages = append(req.Messages, types.NewTextMessage("user", prompt))
	if opts.maxTokens > 0 {
		req.MaxTokens = &opts.maxTokens
	}
	if opts.temperature >= 0 {
		req.Temperature = &opts.temperature
	}
	return req
}

func statusPrinter(w io.Writer) status.Emitter {
	return status.EmitterFunc(func(_ context.Context, ev status.Event) {
		marker := "…"
		if ev.Data.Done {
			marker = "✓"
		}
		fmt.Fprintf(w, "[%s] %s\n", marker, ev.Data.Description)
	})
}

func runAsk(ctx context.Context, reg *pipe.Registry, req *types.ChatRequest, emitter status.Emitter, out io.Writer) error {
	res, err := reg.Run(ctx, req, emitter)
	if err != nil {
		return err
	}
	if !res.Streaming() {
		if res.ToolCalls != nil {
			_, err = fmt.Fprintln(out, res.ToolCalls.String())
			return err
		}
		_, err = fmt.Fprintln(out, res.Text)
		return err
	}
	for chunk := range res.Stream {
		if chunk.Kind == types.ChunkError {
			fmt.Fprintln(out)
			return chunk.Err
		}
		if _, err := io.WriteString(out, chunk.Text); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(out)
	return err
}

func newModelsCmd(cfg *config.Config) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models every pipe serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := newRegistry(*cfg).Models()
			out := cmd.OutOrStdout()
			if jsonOut {
				data, err := jsonx.Marshal(list)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tOWNER\tCONTEXT\tVISION\tTHINKING")
			for _, m := range list {
				ctxLen := "-"
				if m.ContextLength > 0 {
					ctxLen = fmt.Sprint(m.ContextLength)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", m.ID, m.Name, m.OwnedBy, ctxLen, m.SupportsVision, m.SupportsThinking)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the list as JSON")
	return cmd
}
