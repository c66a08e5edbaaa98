package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// Paths is the host layout tronctl manages. Every field may be overridden
// from the command line.
type Paths struct {
	ConfigDir string
	DataDir   string
	LogDir    string
	PIDFile   string
}

func DefaultPaths() Paths {
	return Paths{
		ConfigDir: DefaultConfigDir,
		DataDir:   DefaultDataDir,
		LogDir:    DefaultLogDir,
		PIDFile:   DefaultPIDFile,
	}
}

func (p Paths) SettingsPath() string   { return filepath.Join(p.ConfigDir, SettingsFile) }
func (p Paths) NodeConfigPath() string { return filepath.Join(p.ConfigDir, NodeConfigFile) }
func (p Paths) JarPath() string        { return filepath.Join(p.DataDir, FullNodeJar) }
func (p Paths) NodeLogPath() string    { return filepath.Join(p.LogDir, NodeLogFile) }
func (p Paths) ToolLogPath() string    { return filepath.Join(p.LogDir, ToolLogFile) }

// ChainDataDir is the directory handed to the node with -d.
func (p Paths) ChainDataDir() string { return filepath.Join(p.DataDir, "data") }

// DatabaseDir holds the node database; a snapshot is unpacked only while it is empty.
func (p Paths) DatabaseDir() string {
	return filepath.Join(p.ChainDataDir(), "output-directory", "database")
}

// NodeRuntimeLog is where java-tron writes its own logback output.
func (p Paths) NodeRuntimeLog() string { return filepath.Join(p.DataDir, "logs", "tron.log") }

// EnsureDirs creates every directory tronctl writes to.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir, p.ChainDataDir(), p.LogDir, filepath.Dir(p.PIDFile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

type Settings struct {
	JavaPath     string `toml:"java_path"`
	JVMMinHeap   string `toml:"jvm_min_heap"`
	JVMMaxHeap   string `toml:"jvm_max_heap"`
	FullNodeJar  string `toml:"fullnode_jar"`
	NodeConfig   string `toml:"node_config"`
	DataDir      string `toml:"data_dir"`
	LogFile      string `toml:"log_file"`
	PIDFile      string `toml:"pid_file"`
	RPCEndpoint  string `toml:"rpc_endpoint"`
	SnapshotType string `toml:"snapshot_type"`
	NodeVersion  string `toml:"node_version,omitempty"`
}

func DefaultSettings(p Paths) Settings {
	return Settings{
		JavaPath:     "java",
		JVMMinHeap:   DefaultMinHeap,
		JVMMaxHeap:   DefaultMaxHeap,
		FullNodeJar:  p.JarPath(),
		NodeConfig:   p.NodeConfigPath(),
		DataDir:      p.ChainDataDir(),
		LogFile:      p.NodeLogPath(),
		PIDFile:      p.PIDFile,
		RPCEndpoint:  DefaultRPCEndpoint,
		SnapshotType: SnapshotNone,
	}
}

func (s Settings) Validate() error {
	if err := ValidateHeap(s.JVMMinHeap); err != nil {
		return err
	}
	if err := ValidateHeap(s.JVMMaxHeap); err != nil {
		return err
	}
	if err := ValidateSnapshotType(s.SnapshotType); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"java_path":    s.JavaPath,
		"fullnode_jar": s.FullNodeJar,
		"node_config":  s.NodeConfig,
		"data_dir":     s.DataDir,
		"log_file":     s.LogFile,
		"pid_file":     s.PIDFile,
	} {
		if strings.TrimSpace(v) == "" {
			return utils.ConfigErrorf("%s must not be empty", name)
		}
	}
	return nil
}

// Load reads the settings file written by init. A missing file means the
// host was never initialized.
func Load(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, utils.ErrNotInitialized
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &s); err != nil {
		return s, utils.ConfigErrorf("failed to parse %s: %v", path, err)
	}
	if s.RPCEndpoint == "" {
		s.RPCEndpoint = DefaultRPCEndpoint
	}
	if s.SnapshotType == "" {
		s.SnapshotType = SnapshotNone
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// ValidateHeap accepts JVM sizes such as 8g or 512M.
func ValidateHeap(v string) error {
	v = strings.TrimSpace(v)
	if len(v) < 2 {
		return utils.ConfigErrorf("invalid heap size %q, expected e.g. 8g or 512m", v)
	}
	unit := strings.ToLower(v[len(v)-1:])
	if unit != "g" && unit != "m" {
		return utils.ConfigErrorf("invalid heap size %q, must end with g or m", v)
	}
	for _, r := range v[:len(v)-1] {
		if r < '0' || r > '9' {
			return utils.ConfigErrorf("invalid heap size %q", v)
		}
	}
	return nil
}

func ValidateSnapshotType(v string) error {
	switch v {
	case SnapshotNone, SnapshotLite, SnapshotFull:
		return nil
	default:
		return utils.ConfigErrorf("unknown snapshot type %q (want none, lite or full)", v)
	}
}
