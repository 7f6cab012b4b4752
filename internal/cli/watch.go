package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/ledger"
	"github.com/kestrelhq/chorus/internal/transcript"
	"github.com/kestrelhq/chorus/internal/workspace"
)

const watchPollInterval = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the event log, optionally following new events",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Bool("follow", false, "Keep printing new events as they are appended")
}

func runWatch(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	follow, err := cmd.Flags().GetBool("follow")
	if err != nil {
		return err
	}

	logPath := workspace.EventLogPath(stateDir)
	f := transcript.NewFormatter()
	out := cmd.OutOrStdout()

	lastSeq := int64(0)
	print := func() error {
		l, err := ledger.Read(logPath)
		if err != nil {
			return err
		}
		for _, env := range l.Envelopes {
			if env.Seq <= lastSeq {
				continue
			}
			fmt.Fprintln(out, f.FormatEnvelope(env))
			lastSeq = env.Seq
		}
		return nil
	}

	if err := print(); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	ctx := cmd.Context()
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := print(); err != nil {
				return err
			}
		}
	}
}
