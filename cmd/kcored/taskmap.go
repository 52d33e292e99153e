package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-os/kcore"
)

type taskMapFile struct {
	Tasks []struct {
		PhysAddr uint64 `yaml:"phys_addr"`
		Size     uint64 `yaml:"size"`
		Name     string `yaml:"name"`
	} `yaml:"tasks"`
}

func loadTaskMap(path string) (kcore.TaskMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return kcore.TaskMap{}, err
	}
	var f taskMapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return kcore.TaskMap{}, err
	}
	tm := kcore.TaskMap{Records: make([]kcore.TaskMapRecord, len(f.Tasks))}
	for i, t := range f.Tasks {
		tm.Records[i] = kcore.TaskMapRecord{PhysAddr: t.PhysAddr, Size: t.Size, Name: t.Name}
	}
	return tm, nil
}
