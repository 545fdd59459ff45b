package shell

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

func (i *Interpreter) cmdCPU(ctx context.Context, args []string) string {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		return fmt.Sprintf("cpu: %v", err)
	}
	return fmt.Sprintf("CPU Usage: %.1f%%", percents[0])
}

func (i *Interpreter) cmdMem(ctx context.Context, args []string) string {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("mem: %v", err)
	}
	return fmt.Sprintf("Memory Usage: %.1f%% (%dMB/%dMB)",
		vm.UsedPercent, vm.Used/(1024*1024), vm.Total/(1024*1024))
}

func (i *Interpreter) cmdPs(ctx context.Context, args []string) string {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("ps: %v", err)
	}

	var lines []string
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("PID: %d, Name: %s", p.Pid, name))
	}
	return strings.Join(lines, "\n")
}

func (i *Interpreter) cmdTop(ctx context.Context, args []string) string {
	var out []string

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		out = append(out, fmt.Sprintf("CPU: %.1f%% overall", percents[0]))
	}
	if percpu, err := cpu.PercentWithContext(ctx, 0, true); err == nil {
		parts := make([]string, len(percpu))
		for n, p := range percpu {
			parts[n] = fmt.Sprintf("%.1f%%", p)
		}
		out = append(out, "Per-CPU: "+strings.Join(parts, ", "))
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out = append(out, fmt.Sprintf("Memory: %.1f%% (%s / %s)",
			vm.UsedPercent, humanSize(int64(vm.Used)), humanSize(int64(vm.Total))))
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		out = append(out, fmt.Sprintf("Swap  : %.1f%% (%s / %s)",
			swap.UsedPercent, humanSize(int64(swap.Used)), humanSize(int64(swap.Total))))
	}

	type procStat struct {
		pid  int32
		name string
		cpu  float64
		mem  float32
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err == nil {
		stats := make([]procStat, 0, len(procs))
		for _, p := range procs {
			name, err := p.NameWithContext(ctx)
			if err != nil {
				continue
			}
			cpuPct, _ := p.CPUPercentWithContext(ctx)
			memPct, _ := p.MemoryPercentWithContext(ctx)
			stats = append(stats, procStat{pid: p.Pid, name: name, cpu: cpuPct, mem: memPct})
		}
		sort.Slice(stats, func(a, b int) bool { return stats[a].cpu > stats[b].cpu })
		if len(stats) > 10 {
			stats = stats[:10]
		}

		out = append(out, "", "Top processes by CPU:")
		for _, s := range stats {
			out = append(out, fmt.Sprintf("%6d %5.1f%% %5.2f%% %s", s.pid, s.cpu, s.mem, s.name))
		}
	}

	return strings.Join(out, "\n")
}

func (i *Interpreter) cmdDf(ctx context.Context, args []string) string {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return fmt.Sprintf("df: %v", err)
	}

	var out []string
	for _, part := range parts {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s on %s (%s) - %.1f%% used (%s/%s)",
			part.Device, part.Mountpoint, part.Fstype,
			usage.UsedPercent, humanSize(int64(usage.Used)), humanSize(int64(usage.Total))))
	}
	return strings.Join(out, "\n")
}
