package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-os/kcore"
	"github.com/kestrel-os/kcore/internal/ipc"
)

func newBenchCmd() *cobra.Command {
	var calls int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a ping IPC scenario and report call latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k, err := kcore.New(cfg)
			if err != nil {
				return err
			}

			server := k.SpawnTask("pong-server", permAllForBench)
			client := k.SpawnTask("ping-client", permAllForBench)

			go serveEcho(server.Inbox)
			defer server.Inbox.HangupAll()

			phone := ipc.NewPhone()
			if err := phone.Connect(server.Inbox); err != nil {
				return err
			}
			client.AddPhone(phone)

			start := time.Now()
			for i := 0; i < calls; i++ {
				callStart := time.Now()
				call := ipc.NewCall(1, [5]uint64{uint64(i)})
				if err := phone.Send(call); err != nil {
					return err
				}
				retval := call.Await()
				k.Metrics.IPCCallLatency.Observe(time.Since(callStart).Seconds())
				if retval != 0 {
					return fmt.Errorf("ping %d: unexpected retval %d", i, retval)
				}
			}
			elapsed := time.Since(start)
			fmt.Printf("%d calls in %s (%.1f calls/s)\n", calls, elapsed, float64(calls)/elapsed.Seconds())
			return nil
		},
	}
	cmd.Flags().IntVar(&calls, "calls", 10000, "number of ping calls to issue")
	return cmd
}

// serveEcho answers every call on ab with retval 0 until the
// answerbox is hung up, the minimal pong side of the ping scenario.
func serveEcho(ab *ipc.Answerbox) {
	for {
		call := ab.Receive()
		if call == nil {
			return
		}
		_ = ab.Answer(call, 0, call.Args)
	}
}

const permAllForBench = ^uint32(0)
