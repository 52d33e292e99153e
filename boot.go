package kcore

import "github.com/kestrel-os/kcore/internal/constants"

// TaskMapRecord describes one boot-time task image, the host-process
// analogue of kinit.c's init_t/program_t pair: a physical blob plus
// the name it is loaded under. Size/PhysAddr stand in for the real
// kernel's loader parameters; this simulation has no actual binary to
// map, so Boot only uses them for bookkeeping and logging.
type TaskMapRecord struct {
	PhysAddr uint64
	Size     uint64
	Name     string
}

// TaskMap is the boot handoff structure kinit.c walks to spawn every
// init task, bounded the same way spec §6 bounds it.
type TaskMap struct {
	Records []TaskMapRecord
}

// Boot replays a TaskMap the way kinit_main walks init.tasks[i]: one
// task is spawned per record, in order, each granted full permissions
// (kinit is trusted to assign the real permission mask later via
// task_set_perms in the original; this simulation grants everything
// up front since there is no ELF-embedded capability list to parse).
//
// Boot returns ENOSPC if the map carries more than
// constants.TaskMapMaxRecords entries, mirroring kinit.c's
// CONFIG_INIT_TASKS-sized programs array.
func (k *Kernel) Boot(tm TaskMap) ([]*Task, error) {
	if len(tm.Records) > constants.TaskMapMaxRecords {
		return nil, NewError("kernel.Boot", ENOSPC, "task map exceeds TaskMapMaxRecords")
	}

	tasks := make([]*Task, 0, len(tm.Records))
	for i, rec := range tm.Records {
		name := rec.Name
		if name == "" {
			return nil, NewError("kernel.Boot", EINVAL, "init task has empty name")
		}
		if len(name) > constants.TaskNameBufLen {
			name = name[:constants.TaskNameBufLen]
		}
		if rec.PhysAddr%constants.PageSize != 0 {
			return nil, NewError("kernel.Boot", EINVAL, "init task address is not frame aligned")
		}

		t := k.SpawnTask(name, permAll)
		k.log.Info("init task loaded", "index", i, "name", name, "size", rec.Size)
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// permAll is every permission bit set, granted to boot-time init tasks
// the same way kinit.c's tasks start fully trusted before userspace
// narrows its own capabilities.
const permAll uint32 = ^uint32(0)
