package environment

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"golang.org/x/sys/unix"
)

const gb = 1024 * 1024 * 1024

var javaVersionRegex = regexp.MustCompile(`version "([^"]+)"`)

// Report summarizes a preflight run. Resource shortfalls only produce
// warnings; privilege and Java problems fail the run.
type Report struct {
	Root        bool     `json:"root" yaml:"root"`
	JavaVersion string   `json:"java_version" yaml:"java_version"`
	MemoryGB    uint64   `json:"memory_gb" yaml:"memory_gb"`
	DiskFreeGB  uint64   `json:"disk_free_gb" yaml:"disk_free_gb"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Checker runs the host preflight checks. Its probes are swappable so the
// checks can run unprivileged.
type Checker struct {
	JavaPath string
	DiskPath string

	Euid        func() int
	JavaVersion func(ctx context.Context, javaPath string) (string, error)
	TotalMemory func() (uint64, error)
	FreeDisk    func(path string) (uint64, error)
}

func NewChecker(javaPath, diskPath string) *Checker {
	if javaPath == "" {
		javaPath = "java"
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &Checker{
		JavaPath:    javaPath,
		DiskPath:    diskPath,
		Euid:        unix.Geteuid,
		JavaVersion: javaVersionOutput,
		TotalMemory: totalMemory,
		FreeDisk:    freeDisk,
	}
}

// Run checks privileges, Java, memory and disk in that order and stops at
// the first hard failure.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	log := utils.GetLogger("environment")
	var report Report

	if c.Euid() != 0 {
		return report, utils.ErrInsufficientPermissions
	}
	report.Root = true
	log.Info().Msg("running as root")

	out, err := c.JavaVersion(ctx, c.JavaPath)
	if err != nil {
		return report, utils.ConfigErrorf("java not found or not runnable (%s): %v", c.JavaPath, err)
	}
	version, err := CheckJavaVersion(out)
	report.JavaVersion = version
	if err != nil {
		return report, err
	}
	log.Info().Str("version", version).Msg("java version ok")

	if total, err := c.TotalMemory(); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("could not read memory size: %v", err))
	} else {
		report.MemoryGB = total / gb
		if report.MemoryGB < config.RecommendedMemoryGB {
			report.Warnings = append(report.Warnings, fmt.Sprintf("low memory: %d GB recommended, %d GB installed", config.RecommendedMemoryGB, report.MemoryGB))
		}
	}

	if free, err := c.FreeDisk(c.DiskPath); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("could not read free disk space on %s: %v", c.DiskPath, err))
	} else {
		report.DiskFreeGB = free / gb
		if report.DiskFreeGB < config.RecommendedDiskGB {
			report.Warnings = append(report.Warnings, fmt.Sprintf("low disk space on %s: %d GB recommended, %d GB free", c.DiskPath, config.RecommendedDiskGB, report.DiskFreeGB))
		}
	}

	for _, w := range report.Warnings {
		log.Warn().Msg(w)
	}
	return report, nil
}

// CheckJavaVersion extracts the version from `java -version` output and
// accepts Java 8 in either of its spellings.
func CheckJavaVersion(output string) (string, error) {
	m := javaVersionRegex.FindStringSubmatch(output)
	if m == nil {
		first, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
		if first == "" {
			first = "unknown"
		}
		return "", &utils.IncompatibleJavaError{Required: config.RequiredJavaVersion, Found: first}
	}
	version := m[1]
	if version == "8" || strings.HasPrefix(version, config.RequiredJavaVersion+".") || version == config.RequiredJavaVersion || strings.HasPrefix(version, "8.") {
		return version, nil
	}
	return version, &utils.IncompatibleJavaError{Required: config.RequiredJavaVersion, Found: version}
}

// java prints its version on stderr.
func javaVersionOutput(ctx context.Context, javaPath string) (string, error) {
	out, err := exec.CommandContext(ctx, javaPath, "-version").CombinedOutput()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", err
	}
	return string(out), nil
}

func totalMemory() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Total, nil
}

func freeDisk(path string) (uint64, error) {
	d, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return d.Free, nil
}
