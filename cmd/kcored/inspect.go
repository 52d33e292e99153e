package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrel-os/kcore"
)

type taskSnapshot struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	Threads int    `json:"threads"`
	Phones  int    `json:"phones"`
}

type cpuSnapshot struct {
	ID       int `json:"id"`
	ReadyLen int `json:"ready_len"`
}

type inspectSnapshot struct {
	Tasks []taskSnapshot `json:"tasks"`
	CPUs  []cpuSnapshot  `json:"cpus"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Boot a kernel from a task map and dump scheduler/IPC state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k, err := kcore.New(cfg)
			if err != nil {
				return err
			}
			tm := defaultTaskMap()
			if _, err := k.Boot(tm); err != nil {
				return err
			}

			snap := inspectSnapshot{}
			for _, t := range k.Tasks() {
				snap.Tasks = append(snap.Tasks, taskSnapshot{
					ID:      t.ID,
					Name:    t.Name,
					Threads: len(t.Threads()),
					Phones:  len(t.Phones()),
				})
			}
			for _, cpu := range k.Sched.CPUs {
				snap.CPUs = append(snap.CPUs, cpuSnapshot{ID: cpu.ID, ReadyLen: cpu.ReadyLen()})
			}

			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}
